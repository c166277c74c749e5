package vehicle

import "testing"

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"12.500 km", 12500, true},
		{"1,299", 1299, true},
		{"€ 24.990", 24990, true},
		{"24 990 EUR", 24990, true},
		{"0", 0, true},
		{"no digits here", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseNumber(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in       string
		amount   int
		currency string
		ok       bool
	}{
		{"€ 24.990,-", 24990, "EUR", true},
		{"$13,500", 13500, "USD", true},
		{"24 990 EUR", 24990, "EUR", true},
		{"15000", 15000, "", true},
		{"price on request", 0, "", false},
	}
	for _, tt := range tests {
		amount, currency, ok := ParsePrice(tt.in)
		if amount != tt.amount || currency != tt.currency || ok != tt.ok {
			t.Errorf("ParsePrice(%q) = %d, %q, %v; want %d, %q, %v",
				tt.in, amount, currency, ok, tt.amount, tt.currency, tt.ok)
		}
	}
}

func TestNormalizeFuel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Benzin", "petrol"},
		{"Gasoline", "petrol"},
		{"diesel", "diesel"},
		{"Elektro", "electric"},
		{"Plug-in Hybrid", "hybrid"},
		{"Autogas", "lpg"},
		// Unknown values pass through trimmed instead of being dropped.
		{"  Hydrogen  ", "Hydrogen"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeFuel(tt.in); got != tt.want {
			t.Errorf("NormalizeFuel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTransmission(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Schaltgetriebe", "manual"},
		{"Automatik", "automatic"},
		{"Semi-automatic", "automatic"},
		{"CVT", "CVT"},
	}
	for _, tt := range tests {
		if got := NormalizeTransmission(tt.in); got != tt.want {
			t.Errorf("NormalizeTransmission(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"€", "EUR"},
		{"$", "USD"},
		{"eur", "EUR"},
		{"Lek", "ALL"},
		{"XYZ123", "XYZ123"},
	}
	for _, tt := range tests {
		if got := NormalizeCurrency(tt.in); got != tt.want {
			t.Errorf("NormalizeCurrency(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://WWW.AutoScout24.com/offers/bmw-320d-123/", "https://www.autoscout24.com/offers/bmw-320d-123"},
		{"https://example.com/offer/1#gallery", "https://example.com/offer/1"},
		{"//example.com/offer/1", "https://example.com/offer/1"},
		{"https://example.com/", "https://example.com/"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRecord(t *testing.T) {
	r := Record{
		Source:       "autoscout24",
		URL:          "https://Example.com/offer/42/",
		Make:         " BMW ",
		Model:        " 320d ",
		FuelType:     "Benzin",
		Transmission: "Automatik",
		BodyType:     "Kombi",
		Currency:     "€",
	}
	Normalize(&r)

	if r.URL != "https://example.com/offer/42" {
		t.Errorf("URL = %q", r.URL)
	}
	if r.Make != "BMW" || r.Model != "320d" {
		t.Errorf("make/model = %q/%q", r.Make, r.Model)
	}
	if r.FuelType != "petrol" || r.Transmission != "automatic" || r.BodyType != "estate" {
		t.Errorf("enums = %q/%q/%q", r.FuelType, r.Transmission, r.BodyType)
	}
	if r.Currency != "EUR" {
		t.Errorf("currency = %q", r.Currency)
	}
	if !r.Valid() {
		t.Error("record with source and url should be valid")
	}
}

func TestRecordValid(t *testing.T) {
	if (Record{Source: "autoscout24"}).Valid() {
		t.Error("record without url should be invalid")
	}
	if (Record{URL: "https://example.com/1"}).Valid() {
		t.Error("record without source should be invalid")
	}
}
