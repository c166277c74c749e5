// Package autoscout scrapes AutoScout24 search result pages. The site embeds
// its listing data as JSON inside the Next.js __NEXT_DATA__ script tag, so
// extraction is JSON-first with goquery only locating the script element.
package autoscout

import (
	"context"
	"fmt"

	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
	"github.com/ezekaj/auto-scouter-sub000/pkg/whttp"
)

const (
	SourceName = "autoscout24"

	platformURL     = "https://www.autoscout24.com"
	defaultMaxPages = 5
)

// Scraper implements sources.Scraper for AutoScout24. The listing index is
// public; no authentication step is required.
type Scraper struct {
	client  *whttp.Client
	limiter *whttp.RateLimiter
	query   string
}

// New creates a scraper. query is the raw search query string appended to the
// listing URL (e.g. "atype=C&cy=D&sort=age&desc=1"); empty means newest-first
// across the whole market.
func New(client *whttp.Client, limiter *whttp.RateLimiter, query string) *Scraper {
	if query == "" {
		query = "atype=C&sort=age&desc=1"
	}
	return &Scraper{client: client, limiter: limiter, query: query}
}

func (s *Scraper) Name() string { return SourceName }

// Authenticate is a no-op: the AutoScout24 listing index needs no session.
func (s *Scraper) Authenticate(ctx context.Context, cfg sources.AuthConfig) error { return nil }

func (s *Scraper) ListPageURLs(ctx context.Context, opts sources.FetchOptions) ([]string, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	urls := make([]string, 0, maxPages)
	for page := 1; page <= maxPages; page++ {
		urls = append(urls, fmt.Sprintf("%s/lst?%s&page=%d", platformURL, s.query, page))
	}
	return urls, nil
}

func (s *Scraper) FetchPage(ctx context.Context, pageURL string, opts sources.FetchOptions) (sources.PageResult, error) {
	if err := s.limiter.Wait(ctx, pageURL); err != nil {
		return sources.PageResult{}, err
	}
	res, err := s.client.Do(ctx, &whttp.Req{URL: pageURL})
	if err != nil {
		return sources.PageResult{}, err
	}

	result, err := Extract(res.BodyString)
	if err != nil {
		return sources.PageResult{}, fmt.Errorf("autoscout: %s: %w", pageURL, err)
	}

	if opts.DetailFetch {
		for i := range result.Records {
			if err := s.enrichFromDetail(ctx, &result.Records[i]); err != nil {
				// Detail enrichment is best-effort; the summary record stands.
				result.Skipped++
			}
		}
	}
	return result, nil
}

// enrichFromDetail fetches the listing's own page and fills fields the
// summary card omits (variant, dealer, full image set).
func (s *Scraper) enrichFromDetail(ctx context.Context, rec *vehicle.Record) error {
	if err := s.limiter.Wait(ctx, rec.URL); err != nil {
		return err
	}
	res, err := s.client.Do(ctx, &whttp.Req{URL: rec.URL})
	if err != nil {
		return err
	}
	return extractDetail(res.BodyString, rec)
}
