package autoscout

import (
	"testing"
)

const resultPage = `<!DOCTYPE html>
<html><head><title>Search results</title></head>
<body>
<div id="__next">cars</div>
<script id="__NEXT_DATA__" type="application/json">{
  "props": {
    "pageProps": {
      "listings": [
        {
          "url": "/offers/bmw-320d-xdrive-abc123",
          "vehicle": {
            "make": "BMW",
            "model": "320d",
            "modelVersionInput": "xDrive Touring",
            "firstRegistrationDateRaw": "2019-03-01",
            "mileageInKmRaw": 82500,
            "fuelType": "Diesel",
            "transmissionType": "Automatik",
            "bodyType": "Station wagon"
          },
          "price": {"priceFormatted": "€ 28.500,-", "raw": 28500},
          "location": {"city": "Munich", "zip": "80331", "countryCode": "DE"},
          "seller": {"companyName": "Autohaus Example"},
          "images": ["https://img.example.com/1.jpg", "https://img.example.com/2.jpg"]
        },
        {
          "url": "/offers/fiat-panda-def456",
          "vehicle": {"make": "Fiat", "model": "Panda"},
          "price": {"raw": 7900},
          "tracking": {"mileage": "45.000 km"}
        },
        {
          "vehicle": {"make": "Ghost"},
          "price": {"raw": 1}
        }
      ]
    }
  }
}</script>
</body></html>`

func TestExtract(t *testing.T) {
	result, err := Extract(resultPage)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped fragment, got %d", result.Skipped)
	}

	bmw := result.Records[0]
	if bmw.Source != SourceName {
		t.Errorf("source = %q", bmw.Source)
	}
	if bmw.URL != "https://www.autoscout24.com/offers/bmw-320d-xdrive-abc123" {
		t.Errorf("url = %q", bmw.URL)
	}
	if bmw.Make != "BMW" || bmw.Model != "320d" || bmw.Variant != "xDrive Touring" {
		t.Errorf("vehicle = %q %q %q", bmw.Make, bmw.Model, bmw.Variant)
	}
	if bmw.Year != 2019 {
		t.Errorf("year = %d", bmw.Year)
	}
	if bmw.Price != 28500 || bmw.Currency != "EUR" {
		t.Errorf("price = %d %s", bmw.Price, bmw.Currency)
	}
	if bmw.Mileage != 82500 {
		t.Errorf("mileage = %d", bmw.Mileage)
	}
	// Free-text enums come out canonicalized.
	if bmw.FuelType != "diesel" || bmw.Transmission != "automatic" || bmw.BodyType != "estate" {
		t.Errorf("enums = %q %q %q", bmw.FuelType, bmw.Transmission, bmw.BodyType)
	}
	if bmw.City != "Munich" || bmw.Country != "DE" || bmw.DealerName != "Autohaus Example" {
		t.Errorf("location = %q %q %q", bmw.City, bmw.Country, bmw.DealerName)
	}
	if len(bmw.ImageURLs) != 2 {
		t.Errorf("images = %v", bmw.ImageURLs)
	}

	panda := result.Records[1]
	if panda.Price != 7900 || panda.Currency != "EUR" {
		t.Errorf("raw price fallback = %d %s", panda.Price, panda.Currency)
	}
	if panda.Mileage != 45000 {
		t.Errorf("tracking mileage fallback = %d", panda.Mileage)
	}
}

func TestExtractLayoutChange(t *testing.T) {
	pages := []string{
		"<html><body>maintenance</body></html>",
		`<html><body><script id="__NEXT_DATA__">{"props":{"pageProps":{}}}</script></body></html>`,
	}
	for _, page := range pages {
		if _, err := Extract(page); err == nil {
			t.Errorf("expected layout error for %q", page[:30])
		}
	}
}

func TestExtractEmptyResults(t *testing.T) {
	page := `<html><body><script id="__NEXT_DATA__">{"props":{"pageProps":{"listings":[]}}}</script></body></html>`
	result, err := Extract(page)
	if err != nil {
		t.Fatalf("an empty result set is not a layout error: %v", err)
	}
	if len(result.Records) != 0 || result.Skipped != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestExtractDetail(t *testing.T) {
	page := `<html><body><script id="__NEXT_DATA__">{
  "props": {"pageProps": {"listingDetails": {
    "vehicle": {"modelVersionInput": "320d xDrive M Sport"},
    "seller": {"companyName": "Detail Motors"},
    "images": ["https://img.example.com/full1.jpg"]
  }}}
}</script></body></html>`

	result, err := Extract(resultPage)
	if err != nil {
		t.Fatal(err)
	}
	rec := result.Records[0]
	if err := extractDetail(page, &rec); err != nil {
		t.Fatalf("extractDetail() error: %v", err)
	}
	if rec.Variant != "320d xDrive M Sport" {
		t.Errorf("variant = %q", rec.Variant)
	}
	if rec.DealerName != "Detail Motors" {
		t.Errorf("dealer = %q", rec.DealerName)
	}
	if len(rec.ImageURLs) != 1 {
		t.Errorf("images = %v", rec.ImageURLs)
	}
}
