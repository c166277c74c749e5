package carmarket

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
)

// ErrPageLayout means the result page lacks the vehicle grid entirely,
// which points at a site redesign rather than an empty result set.
var ErrPageLayout = errors.New("carmarket: unexpected page layout, vehicle grid missing")

// Extract parses a findvehicle result page into records. An empty grid with
// the container present is a valid zero-result page. Individual cards that
// fail to parse are skipped and counted.
func Extract(html string) (sources.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return sources.PageResult{}, ErrPageLayout
	}

	grid := doc.Find("div.vehicle-list")
	if grid.Length() == 0 {
		return sources.PageResult{}, ErrPageLayout
	}

	var result sources.PageResult
	now := time.Now().UTC()
	grid.Find("article.vehicle-card").Each(func(_ int, card *goquery.Selection) {
		rec, ok := parseCard(card)
		if !ok {
			result.Skipped++
			return
		}
		rec.ScrapedAt = now
		vehicle.Normalize(&rec)
		result.Records = append(result.Records, rec)
	})
	return result, nil
}

func parseCard(card *goquery.Selection) (vehicle.Record, bool) {
	rec := vehicle.Record{Source: SourceName}

	href, ok := card.Find("a.vehicle-card__link").First().Attr("href")
	if !ok || href == "" {
		return rec, false
	}
	if strings.HasPrefix(href, "/") {
		href = platformURL + href
	}
	rec.URL = href

	// Title format: "BMW 320d xDrive Touring" — make, model, rest is variant.
	title := strings.TrimSpace(card.Find(".vehicle-card__title").First().Text())
	if title == "" {
		return rec, false
	}
	parts := strings.Fields(title)
	rec.Make = parts[0]
	if len(parts) > 1 {
		rec.Model = parts[1]
	}
	if len(parts) > 2 {
		rec.Variant = strings.Join(parts[2:], " ")
	}

	if priceText := card.Find(".vehicle-card__price").First().Text(); priceText != "" {
		amount, currency, ok := vehicle.ParsePrice(priceText)
		if !ok {
			return rec, false
		}
		rec.Price = amount
		if currency == "" {
			currency = "EUR"
		}
		rec.Currency = currency
	}

	card.Find("ul.vehicle-card__specs li").Each(func(_ int, spec *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(spec.AttrOr("data-spec", "")))
		value := strings.TrimSpace(spec.Text())
		switch label {
		case "year", "first-registration":
			// Registration comes as "2019" or "03/2019"; the year is the
			// last slash-separated field.
			fields := strings.Split(value, "/")
			if y, ok := vehicle.ParseNumber(fields[len(fields)-1]); ok && y > 1900 {
				rec.Year = y
			}
		case "mileage":
			if m, ok := vehicle.ParseNumber(value); ok {
				rec.Mileage = m
			}
		case "fuel":
			rec.FuelType = value
		case "gearbox", "transmission":
			rec.Transmission = value
		case "body":
			rec.BodyType = value
		case "location":
			rec.City = value
		}
	})

	rec.DealerName = strings.TrimSpace(card.Find(".vehicle-card__seller").First().Text())
	rec.Country = strings.TrimSpace(card.Find(".vehicle-card__country").First().AttrOr("data-country", ""))

	card.Find(".vehicle-card__gallery img").Each(func(_ int, img *goquery.Selection) {
		if src := img.AttrOr("data-src", img.AttrOr("src", "")); src != "" {
			rec.ImageURLs = append(rec.ImageURLs, src)
		}
	})

	return rec, true
}
