package sources

import (
	"context"

	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
)

// FetchOptions carries per-cycle controls for a source scraper.
type FetchOptions struct {
	// MaxPages bounds how many result pages one cycle walks. <= 0 means
	// the source default.
	MaxPages int
	// DetailFetch enables following each summary through to its detail
	// page for the full specification. Costs one extra request per listing.
	DetailFetch bool
}

// AuthConfig carries optional authentication inputs.
type AuthConfig struct {
	Email    string
	Password string
	Token    string
	Proxy    string
}

// PageResult is the outcome of extracting one result page.
type PageResult struct {
	Records []vehicle.Record
	// Skipped counts individual listing fragments that failed to parse and
	// were dropped. The page itself still succeeded.
	Skipped int
}

// Scraper defines a common interface for marketplace-specific scraping,
// abstracting away authentication, page discovery and record extraction.
// Adding a marketplace means adding an implementation, not branching logic.
type Scraper interface {
	Name() string
	// Authenticate configures the scraper with credentials, if the source
	// requires a session login. Implementations that don't should return nil.
	Authenticate(ctx context.Context, cfg AuthConfig) error
	// ListPageURLs returns the result-page URLs one cycle should fetch.
	ListPageURLs(ctx context.Context, opts FetchOptions) ([]string, error)
	// FetchPage retrieves and extracts one result page.
	FetchPage(ctx context.Context, pageURL string, opts FetchOptions) (PageResult, error)
}
