package whttp

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// RateLimiter enforces a minimum delay between requests to the same host.
// Hosts are keyed by registrable domain, so www.autoscout24.com and
// listings.autoscout24.com share one budget (marketplaces rate-limit per
// site, not per subdomain).
type RateLimiter struct {
	minDelay time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateLimiter creates a limiter with the given minimum inter-request delay.
func NewRateLimiter(minDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		minDelay: minDelay,
		last:     make(map[string]time.Time),
	}
}

// Wait blocks until a request to rawURL's host is allowed, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	if rl == nil || rl.minDelay <= 0 {
		return nil
	}
	key := hostKey(rawURL)

	rl.mu.Lock()
	now := time.Now()
	earliest := rl.last[key].Add(rl.minDelay)
	if earliest.Before(now) {
		earliest = now
	}
	rl.last[key] = earliest
	rl.mu.Unlock()

	wait := time.Until(earliest)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	if domain, err := publicsuffix.Domain(host); err == nil && domain != "" {
		return domain
	}
	return host
}
