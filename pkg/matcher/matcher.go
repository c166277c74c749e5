// Package matcher evaluates alert criteria against listing deltas. It is
// pure: no I/O, no hidden state, and the same inputs always produce the same
// results.
package matcher

import (
	"strings"
	"time"

	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

// filterDimensions is how many filter fields an alert can set; used as the
// denominator of the specificity score.
const filterDimensions = 11

// Result is one (alert, listing) match. Score is informational only — a
// specificity measure for ranking, never an eligibility threshold.
type Result struct {
	AlertID   int64
	ListingID int64
	Listing   storage.Listing
	Score     float64
	MatchedAt time.Time
}

// Match evaluates every active alert against every listing in the delta.
// Cost is O(|delta| x |alerts|), which is fine at single-user alert counts;
// the delta is already bounded by reconciliation.
func Match(delta []storage.Listing, alerts []storage.Alert, now time.Time) []Result {
	var results []Result
	for _, l := range delta {
		for _, a := range alerts {
			if !a.IsActive {
				continue
			}
			if Matches(&a, &l) {
				results = append(results, Result{
					AlertID:   a.ID,
					ListingID: l.ID,
					Listing:   l,
					Score:     Score(&a),
					MatchedAt: now,
				})
			}
		}
	}
	return results
}

// Matches reports whether the listing satisfies every set filter on the
// alert. Unset filters always match; set string filters compare exact
// case-insensitive; range bounds are inclusive.
func Matches(a *storage.Alert, l *storage.Listing) bool {
	if !strEq(a.Make, l.Make) || !strEq(a.Model, l.Model) {
		return false
	}
	if !strEq(a.FuelType, l.FuelType) || !strEq(a.Transmission, l.Transmission) {
		return false
	}
	if !strEq(a.BodyType, l.BodyType) || !strEq(a.City, l.City) {
		return false
	}
	if a.MinYear != nil && l.Year < *a.MinYear {
		return false
	}
	if a.MaxYear != nil && l.Year > *a.MaxYear {
		return false
	}
	if a.MinPrice != nil && l.Price < *a.MinPrice {
		return false
	}
	if a.MaxPrice != nil && l.Price > *a.MaxPrice {
		return false
	}
	if a.MaxMileage != nil && l.Mileage > *a.MaxMileage {
		return false
	}
	return true
}

// Score returns the alert's specificity: set filter count over total filter
// dimensions. A narrow alert scores close to 1, a broad one close to 0.
func Score(a *storage.Alert) float64 {
	set := 0
	for _, p := range []*string{a.Make, a.Model, a.FuelType, a.Transmission, a.BodyType, a.City} {
		if p != nil {
			set++
		}
	}
	for _, p := range []*int{a.MinYear, a.MaxYear, a.MinPrice, a.MaxPrice, a.MaxMileage} {
		if p != nil {
			set++
		}
	}
	return float64(set) / filterDimensions
}

func strEq(filter *string, value string) bool {
	if filter == nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(*filter), strings.TrimSpace(value))
}
