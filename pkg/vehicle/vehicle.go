package vehicle

import "time"

// Record is a single scraped vehicle listing as extracted from a source page.
// (Source, URL) identifies a real-world listing across scrape cycles.
type Record struct {
	Source string
	URL    string

	Make    string
	Model   string
	Variant string
	Year    int

	Price    int
	Currency string

	Mileage      int
	FuelType     string
	Transmission string
	BodyType     string

	City    string
	Region  string
	Country string

	DealerName string
	ImageURLs  []string

	ScrapedAt time.Time
}

// Valid reports whether the record carries the minimum fields required for
// identity. Records failing this are dropped (and counted) by extractors.
func (r Record) Valid() bool {
	return r.Source != "" && r.URL != ""
}
