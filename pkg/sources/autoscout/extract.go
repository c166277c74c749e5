package autoscout

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
)

// ErrPageLayout means the page structure no longer matches what the
// extractor expects (usually a site redesign). The whole page is
// unparseable, as opposed to individual bad fragments which are skipped.
var ErrPageLayout = errors.New("autoscout: unexpected page layout, __NEXT_DATA__ missing")

// Extract parses a search result page into vehicle records. Pure function of
// the HTML; unparseable individual listings are skipped and counted.
func Extract(html string) (sources.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return sources.PageResult{}, ErrPageLayout
	}

	payload := doc.Find("script#__NEXT_DATA__").First().Text()
	if payload == "" {
		return sources.PageResult{}, ErrPageLayout
	}

	listings := gjson.Get(payload, "props.pageProps.listings")
	if !listings.Exists() || !listings.IsArray() {
		return sources.PageResult{}, ErrPageLayout
	}

	var result sources.PageResult
	now := time.Now().UTC()
	for _, l := range listings.Array() {
		rec, ok := parseListing(l)
		if !ok {
			result.Skipped++
			continue
		}
		rec.ScrapedAt = now
		vehicle.Normalize(&rec)
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// parseListing maps one listing JSON object to a record. Returns ok=false
// when the fragment lacks the fields needed for identity.
func parseListing(l gjson.Result) (vehicle.Record, bool) {
	rec := vehicle.Record{Source: SourceName}

	path := gjson.Get(l.Raw, "url").String()
	if path == "" {
		return rec, false
	}
	if strings.HasPrefix(path, "/") {
		path = platformURL + path
	}
	rec.URL = path

	rec.Make = gjson.Get(l.Raw, "vehicle.make").String()
	rec.Model = gjson.Get(l.Raw, "vehicle.model").String()
	rec.Variant = gjson.Get(l.Raw, "vehicle.modelVersionInput").String()
	if rec.Make == "" {
		return rec, false
	}

	if reg := gjson.Get(l.Raw, "vehicle.firstRegistrationDateRaw").String(); len(reg) >= 4 {
		if y, ok := vehicle.ParseNumber(reg[:4]); ok {
			rec.Year = y
		}
	}

	if raw := gjson.Get(l.Raw, "price.priceFormatted").String(); raw != "" {
		amount, currency, ok := vehicle.ParsePrice(raw)
		if !ok {
			return rec, false
		}
		rec.Price = amount
		rec.Currency = currency
	} else if p := gjson.Get(l.Raw, "price.raw"); p.Exists() {
		rec.Price = int(p.Int())
		rec.Currency = "EUR"
	}

	if m := gjson.Get(l.Raw, "vehicle.mileageInKmRaw"); m.Exists() {
		rec.Mileage = int(m.Int())
	} else if raw := gjson.Get(l.Raw, "tracking.mileage").String(); raw != "" {
		if n, ok := vehicle.ParseNumber(raw); ok {
			rec.Mileage = n
		}
	}

	rec.FuelType = gjson.Get(l.Raw, "vehicle.fuelType").String()
	rec.Transmission = gjson.Get(l.Raw, "vehicle.transmissionType").String()
	rec.BodyType = gjson.Get(l.Raw, "vehicle.bodyType").String()

	rec.City = gjson.Get(l.Raw, "location.city").String()
	rec.Region = gjson.Get(l.Raw, "location.zip").String()
	rec.Country = gjson.Get(l.Raw, "location.countryCode").String()
	rec.DealerName = gjson.Get(l.Raw, "seller.companyName").String()

	for _, img := range gjson.Get(l.Raw, "images").Array() {
		if u := img.String(); u != "" {
			rec.ImageURLs = append(rec.ImageURLs, u)
		}
	}

	return rec, true
}

// extractDetail pulls additional fields from a listing detail page into rec.
func extractDetail(html string, rec *vehicle.Record) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ErrPageLayout
	}
	payload := doc.Find("script#__NEXT_DATA__").First().Text()
	if payload == "" {
		return ErrPageLayout
	}

	detail := gjson.Get(payload, "props.pageProps.listingDetails")
	if !detail.Exists() {
		return ErrPageLayout
	}

	if v := gjson.Get(detail.Raw, "vehicle.modelVersionInput").String(); v != "" {
		rec.Variant = v
	}
	if d := gjson.Get(detail.Raw, "seller.companyName").String(); d != "" {
		rec.DealerName = d
	}
	if imgs := gjson.Get(detail.Raw, "images"); imgs.IsArray() {
		rec.ImageURLs = rec.ImageURLs[:0]
		for _, img := range imgs.Array() {
			if u := img.String(); u != "" {
				rec.ImageURLs = append(rec.ImageURLs, u)
			}
		}
	}
	return nil
}
