package matcher

import (
	"testing"
	"time"

	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func bmwAlert() storage.Alert {
	return storage.Alert{
		ID:       1,
		Name:     "bmw under 50k",
		IsActive: true,
		Make:     strPtr("BMW"),
		MinPrice: intPtr(20000),
		MaxPrice: intPtr(50000),
	}
}

func TestMatchesRanges(t *testing.T) {
	alert := bmwAlert()
	tests := []struct {
		name    string
		listing storage.Listing
		want    bool
	}{
		{"inside range", storage.Listing{Make: "BMW", Price: 30000}, true},
		{"lower bound inclusive", storage.Listing{Make: "BMW", Price: 20000}, true},
		{"upper bound inclusive", storage.Listing{Make: "BMW", Price: 50000}, true},
		{"below range", storage.Listing{Make: "BMW", Price: 19999}, false},
		{"above range", storage.Listing{Make: "BMW", Price: 50001}, false},
		{"wrong make", storage.Listing{Make: "Audi", Price: 30000}, false},
		{"make is case-insensitive", storage.Listing{Make: "bmw", Price: 30000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(&alert, &tt.listing); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesUnsetFiltersMatchEverything(t *testing.T) {
	alert := storage.Alert{ID: 2, Name: "any diesel", IsActive: true, FuelType: strPtr("diesel")}
	listing := storage.Listing{Make: "Renault", Model: "Clio", FuelType: "diesel", Price: 900, Year: 1999}
	if !Matches(&alert, &listing) {
		t.Error("unset filters must not restrict the match")
	}
	listing.FuelType = "petrol"
	if Matches(&alert, &listing) {
		t.Error("set fuel filter must restrict the match")
	}
}

func TestMatchesMileageAndYear(t *testing.T) {
	alert := storage.Alert{
		ID: 3, Name: "fresh low-mileage", IsActive: true,
		MinYear: intPtr(2018), MaxMileage: intPtr(100000),
	}
	ok := storage.Listing{Year: 2020, Mileage: 60000}
	if !Matches(&alert, &ok) {
		t.Error("expected match")
	}
	tooOld := storage.Listing{Year: 2017, Mileage: 60000}
	if Matches(&alert, &tooOld) {
		t.Error("year below min must not match")
	}
	tooWorn := storage.Listing{Year: 2020, Mileage: 100001}
	if Matches(&alert, &tooWorn) {
		t.Error("mileage above max must not match")
	}
}

func TestMatchSkipsInactiveAlerts(t *testing.T) {
	alert := bmwAlert()
	alert.IsActive = false
	delta := []storage.Listing{{ID: 10, Make: "BMW", Price: 30000}}

	results := Match(delta, []storage.Alert{alert}, time.Now())
	if len(results) != 0 {
		t.Fatalf("inactive alert produced %d matches", len(results))
	}
}

func TestMatchCrossProduct(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	alerts := []storage.Alert{
		bmwAlert(),
		{ID: 2, Name: "estates", IsActive: true, BodyType: strPtr("estate")},
	}
	delta := []storage.Listing{
		{ID: 10, Make: "BMW", Price: 30000, BodyType: "estate"},
		{ID: 11, Make: "Audi", Price: 30000, BodyType: "sedan"},
	}

	results := Match(delta, alerts, now)
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	for _, r := range results {
		if r.ListingID != 10 {
			t.Errorf("unexpected listing %d matched", r.ListingID)
		}
		if !r.MatchedAt.Equal(now) {
			t.Errorf("MatchedAt = %v, want %v", r.MatchedAt, now)
		}
	}
}

func TestScoreIsSpecificity(t *testing.T) {
	broad := storage.Alert{Make: strPtr("BMW")}
	if got := Score(&broad); got != 1.0/11 {
		t.Errorf("Score(broad) = %v", got)
	}
	narrow := bmwAlert()
	if got := Score(&narrow); got != 3.0/11 {
		t.Errorf("Score(narrow) = %v", got)
	}

	// Score ranks but never gates: a zero-score alert still matches.
	results := Match(
		[]storage.Listing{{ID: 1, Make: "BMW", Price: 30000}},
		[]storage.Alert{{ID: 9, Name: "x", IsActive: true, Make: strPtr("BMW")}},
		time.Now(),
	)
	if len(results) != 1 {
		t.Fatal("low-specificity alert must still match")
	}
	if results[0].Score <= 0 {
		t.Error("score of an alert with one filter should be positive")
	}
}
