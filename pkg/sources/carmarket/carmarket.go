// Package carmarket scrapes the Ayvens CarMarket dealer portal. Listing pages
// sit behind a session login, so Authenticate must run once per cycle; the
// cookie jar on the shared client carries the session across page fetches.
package carmarket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
	"github.com/ezekaj/auto-scouter-sub000/pkg/whttp"
)

const (
	SourceName = "carmarket"

	platformURL     = "https://carmarket.ayvens.com"
	defaultMaxPages = 10
)

var errNotAuthenticated = errors.New("carmarket: not authenticated")

type Scraper struct {
	client        *whttp.Client
	limiter       *whttp.RateLimiter
	authenticated bool
}

func New(client *whttp.Client, limiter *whttp.RateLimiter) *Scraper {
	return &Scraper{client: client, limiter: limiter}
}

func (s *Scraper) Name() string { return SourceName }

// Authenticate performs the portal's form login: fetch the login page for the
// CSRF token, then post credentials. The session cookie lands in the client's
// jar and is reused for every page fetch in the cycle.
func (s *Scraper) Authenticate(ctx context.Context, cfg sources.AuthConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("carmarket: email and password are required")
	}

	loginRes, err := s.client.Do(ctx, &whttp.Req{URL: platformURL + "/en/login"})
	if err != nil {
		return fmt.Errorf("carmarket login page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(loginRes.BodyString))
	if err != nil {
		return fmt.Errorf("carmarket login page parse: %w", err)
	}
	csrf, ok := doc.Find(`form#login-form input[name="__RequestVerificationToken"]`).First().Attr("value")
	if !ok || csrf == "" {
		return errors.New("carmarket: verification token not found on login page")
	}

	form := url.Values{}
	form.Set("__RequestVerificationToken", csrf)
	form.Set("Email", cfg.Email)
	form.Set("Password", cfg.Password)
	form.Set("RememberMe", "true")

	res, err := s.client.Do(ctx, &whttp.Req{
		URL:    platformURL + "/en/login",
		Method: "POST",
		Body:   form.Encode(),
		Headers: []whttp.Header{
			{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
			{Name: "Origin", Value: platformURL},
			{Name: "Referer", Value: platformURL + "/en/login"},
		},
	})
	if err != nil {
		return fmt.Errorf("carmarket login: %w", err)
	}

	// The portal re-renders the login form with an error banner on bad
	// credentials instead of returning 401.
	if strings.Contains(res.BodyString, "login-error") {
		return &whttp.FetchError{URL: platformURL + "/en/login", StatusCode: res.StatusCode, Transient: false, Err: errors.New("credentials rejected")}
	}

	s.authenticated = true
	return nil
}

func (s *Scraper) ListPageURLs(ctx context.Context, opts sources.FetchOptions) ([]string, error) {
	if !s.authenticated {
		return nil, errNotAuthenticated
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	urls := make([]string, 0, maxPages)
	for page := 1; page <= maxPages; page++ {
		urls = append(urls, fmt.Sprintf("%s/en/findvehicle?page=%d&sort=newest", platformURL, page))
	}
	return urls, nil
}

func (s *Scraper) FetchPage(ctx context.Context, pageURL string, opts sources.FetchOptions) (sources.PageResult, error) {
	if !s.authenticated {
		return sources.PageResult{}, errNotAuthenticated
	}
	if err := s.limiter.Wait(ctx, pageURL); err != nil {
		return sources.PageResult{}, err
	}
	res, err := s.client.Do(ctx, &whttp.Req{URL: pageURL})
	if err != nil {
		return sources.PageResult{}, err
	}
	result, err := Extract(res.BodyString)
	if err != nil {
		return sources.PageResult{}, fmt.Errorf("carmarket: %s: %w", pageURL, err)
	}
	return result, nil
}
