package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
)

// ErrSuspectedWipe means a reconcile batch was empty while the source has
// many active listings. Deactivating everything on what is most likely a
// broken scrape would destroy alert-match state, so the batch is rejected.
var ErrSuspectedWipe = errors.New("empty batch against populated source, refusing to deactivate all listings")

const (
	wipeGuardThreshold   = 10
	reconcileBusyRetries = 3
)

// ReconcileListings applies one source's freshly extracted batch to storage:
// unknown URLs are inserted, known active URLs get their mutable fields
// updated (price changes append to price history), inactive URLs are
// reactivated, and active listings absent from the batch are deactivated.
// The sweep is scoped to the source: reconciling one source never touches
// another's listings. Within a batch the last record per URL wins.
//
// The whole pass runs in a single transaction; busy conflicts are retried a
// bounded number of times before escalating.
func (d *DB) ReconcileListings(ctx context.Context, source string, batch []vehicle.Record) (*ReconcileResult, error) {
	var result *ReconcileResult
	var err error
	for attempt := 0; attempt < reconcileBusyRetries; attempt++ {
		result, err = d.reconcileOnce(ctx, source, batch)
		if err == nil || !isBusy(err) {
			return result, err
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return result, err
}

func (d *DB) reconcileOnce(ctx context.Context, source string, batch []vehicle.Record) (*ReconcileResult, error) {
	now := time.Now().UTC()
	runID := now.UnixNano()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var activeCount int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings WHERE source = ? AND is_active = 1", source).Scan(&activeCount); err != nil {
		return nil, err
	}
	if len(batch) == 0 && activeCount > wipeGuardThreshold {
		err = ErrSuspectedWipe
		return nil, err
	}

	type existing struct {
		id       int64
		isActive bool
		price    int
		mileage  int
	}
	existingMap := make(map[string]existing)
	rows, err := tx.QueryContext(ctx, "SELECT id, url, is_active, price, mileage FROM listings WHERE source = ?", source)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var ex existing
		var u string
		var active int
		if err = rows.Scan(&ex.id, &u, &active, &ex.price, &ex.mileage); err != nil {
			rows.Close()
			return nil, err
		}
		ex.isActive = active == 1
		existingMap[u] = ex
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	result := &ReconcileResult{Found: len(batch)}
	for _, rec := range dedupeByURL(batch) {
		ex, existed := existingMap[rec.URL]

		switch {
		case !existed:
			var id int64
			id, err = insertListing(ctx, tx, rec, runID, now)
			if err != nil {
				return nil, err
			}
			result.New = append(result.New, listingFromRecord(rec, id, now, now))

		case !ex.isActive:
			// A relisted vehicle re-triggers alerts, so reactivations join
			// the delta alongside inserts.
			if err = updateListing(ctx, tx, ex.id, rec, runID, now, true); err != nil {
				return nil, err
			}
			if rec.Price != ex.price {
				if err = appendPricePoint(ctx, tx, ex.id, rec.Price, rec.Currency, now); err != nil {
					return nil, err
				}
			}
			result.Reactivated = append(result.Reactivated, listingFromRecord(rec, ex.id, time.Time{}, now))

		default:
			changed := rec.Price != ex.price || rec.Mileage != ex.mileage
			if err = updateListing(ctx, tx, ex.id, rec, runID, now, changed); err != nil {
				return nil, err
			}
			if rec.Price != ex.price {
				if err = appendPricePoint(ctx, tx, ex.id, rec.Price, rec.Currency, now); err != nil {
					return nil, err
				}
			}
			if changed {
				result.Updated = append(result.Updated, listingFromRecord(rec, ex.id, time.Time{}, now))
			}
		}
	}

	// Sweep: actives for this source not observed in this run are delisted.
	res, err := tx.ExecContext(ctx, `UPDATE listings SET is_active = 0, updated_at = ? WHERE source = ? AND is_active = 1 AND run_id != ?`, fmtTime(now), source, runID)
	if err != nil {
		return nil, err
	}
	if n, aerr := res.RowsAffected(); aerr == nil {
		result.Deactivated = int(n)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// dedupeByURL keeps extraction order but lets the last record per URL win.
func dedupeByURL(batch []vehicle.Record) []vehicle.Record {
	index := make(map[string]int, len(batch))
	out := make([]vehicle.Record, 0, len(batch))
	for _, rec := range batch {
		if !rec.Valid() {
			continue
		}
		if i, seen := index[rec.URL]; seen {
			out[i] = rec
			continue
		}
		index[rec.URL] = len(out)
		out = append(out, rec)
	}
	return out
}

func insertListing(ctx context.Context, tx *sql.Tx, rec vehicle.Record, runID int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO listings
		(source, url, make, model, variant, year, price, currency, mileage, fuel_type, transmission, body_type, city, region, country, dealer_name, image_urls, is_active, run_id, first_seen_at, last_seen_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1,?,?,?,?)`,
		rec.Source, rec.URL, nullIfEmpty(rec.Make), nullIfEmpty(rec.Model), nullIfEmpty(rec.Variant), rec.Year,
		rec.Price, nullIfEmpty(rec.Currency), rec.Mileage, nullIfEmpty(rec.FuelType), nullIfEmpty(rec.Transmission),
		nullIfEmpty(rec.BodyType), nullIfEmpty(rec.City), nullIfEmpty(rec.Region), nullIfEmpty(rec.Country),
		nullIfEmpty(rec.DealerName), encodeImageURLs(rec.ImageURLs), runID, fmtTime(now), fmtTime(now), fmtTime(now))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := appendPricePoint(ctx, tx, id, rec.Price, rec.Currency, now); err != nil {
		return 0, err
	}
	return id, nil
}

func updateListing(ctx context.Context, tx *sql.Tx, id int64, rec vehicle.Record, runID int64, now time.Time, touchUpdatedAt bool) error {
	q := `UPDATE listings SET make = ?, model = ?, variant = ?, year = ?, price = ?, currency = ?, mileage = ?,
		fuel_type = ?, transmission = ?, body_type = ?, city = ?, region = ?, country = ?, dealer_name = ?,
		image_urls = ?, is_active = 1, run_id = ?, last_seen_at = ?`
	args := []interface{}{
		nullIfEmpty(rec.Make), nullIfEmpty(rec.Model), nullIfEmpty(rec.Variant), rec.Year, rec.Price,
		nullIfEmpty(rec.Currency), rec.Mileage, nullIfEmpty(rec.FuelType), nullIfEmpty(rec.Transmission),
		nullIfEmpty(rec.BodyType), nullIfEmpty(rec.City), nullIfEmpty(rec.Region), nullIfEmpty(rec.Country),
		nullIfEmpty(rec.DealerName), encodeImageURLs(rec.ImageURLs), runID, fmtTime(now),
	}
	if touchUpdatedAt {
		q += ", updated_at = ?"
		args = append(args, fmtTime(now))
	}
	q += " WHERE id = ?"
	args = append(args, id)
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func appendPricePoint(ctx context.Context, tx *sql.Tx, listingID int64, price int, currency string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO price_history (listing_id, price, currency, observed_at) VALUES (?,?,?,?)`,
		listingID, price, nullIfEmpty(currency), fmtTime(now))
	return err
}

func listingFromRecord(rec vehicle.Record, id int64, firstSeen, now time.Time) Listing {
	if firstSeen.IsZero() {
		firstSeen = now
	}
	return Listing{
		ID: id, Source: rec.Source, URL: rec.URL,
		Make: rec.Make, Model: rec.Model, Variant: rec.Variant, Year: rec.Year,
		Price: rec.Price, Currency: rec.Currency,
		Mileage: rec.Mileage, FuelType: rec.FuelType, Transmission: rec.Transmission, BodyType: rec.BodyType,
		City: rec.City, Region: rec.Region, Country: rec.Country,
		DealerName: rec.DealerName, ImageURLs: rec.ImageURLs,
		IsActive: true, FirstSeenAt: firstSeen, LastSeenAt: now, UpdatedAt: now,
	}
}

func encodeImageURLs(urls []string) interface{} {
	if len(urls) == 0 {
		return nil
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeImageURLs(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(ns.String), &urls); err != nil {
		return nil
	}
	return urls
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// ListListingsOptions controls selection when listing stored listings.
type ListListingsOptions struct {
	Source     string
	Make       string
	Model      string
	ActiveOnly bool
	MinPrice   int
	MaxPrice   int
	Limit      int
	Offset     int
}

// ListListings returns stored listings matching the filters, newest first.
func (d *DB) ListListings(ctx context.Context, opts ListListingsOptions) ([]Listing, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.Source != "" && opts.Source != "all" {
		where += " AND source = ?"
		args = append(args, opts.Source)
	}
	if opts.Make != "" {
		where += " AND make = ? COLLATE NOCASE"
		args = append(args, opts.Make)
	}
	if opts.Model != "" {
		where += " AND model = ? COLLATE NOCASE"
		args = append(args, opts.Model)
	}
	if opts.ActiveOnly {
		where += " AND is_active = 1"
	}
	if opts.MinPrice > 0 {
		where += " AND price >= ?"
		args = append(args, opts.MinPrice)
	}
	if opts.MaxPrice > 0 {
		where += " AND price <= ?"
		args = append(args, opts.MaxPrice)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, opts.Offset)

	q := listingColumns + " FROM listings " + where + " ORDER BY first_seen_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetListing returns one listing by internal id.
func (d *DB) GetListing(ctx context.Context, id int64) (*Listing, error) {
	row := d.sql.QueryRowContext(ctx, listingColumns+" FROM listings WHERE id = ?", id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListPriceHistory returns a listing's price points in observation order.
func (d *DB) ListPriceHistory(ctx context.Context, listingID int64) ([]PricePoint, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT price, currency, observed_at FROM price_history WHERE listing_id = ? ORDER BY observed_at, id", listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		var cur, observed sql.NullString
		if err := rows.Scan(&p.Price, &cur, &observed); err != nil {
			return nil, err
		}
		p.Currency = cur.String
		p.ObservedAt = parseNullTime(observed)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SourceStats summarizes one source's stored listings.
type SourceStats struct {
	Source   string `json:"source"`
	Active   int    `json:"active"`
	Inactive int    `json:"inactive"`
}

func (d *DB) GetStats(ctx context.Context) ([]SourceStats, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT source,
			SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_active = 0 THEN 1 ELSE 0 END)
		FROM listings
		GROUP BY source
		ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var s SourceStats
		if err := rows.Scan(&s.Source, &s.Active, &s.Inactive); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

const listingColumns = `SELECT id, source, url, make, model, variant, year, price, currency, mileage,
	fuel_type, transmission, body_type, city, region, country, dealer_name, image_urls,
	is_active, first_seen_at, last_seen_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (Listing, error) {
	var l Listing
	var mk, md, vr, cur, fuel, trans, body, city, region, country, dealer, images sql.NullString
	var active int
	var first, last, updated sql.NullString
	err := row.Scan(&l.ID, &l.Source, &l.URL, &mk, &md, &vr, &l.Year, &l.Price, &cur, &l.Mileage,
		&fuel, &trans, &body, &city, &region, &country, &dealer, &images,
		&active, &first, &last, &updated)
	if err != nil {
		return l, err
	}
	l.Make, l.Model, l.Variant = mk.String, md.String, vr.String
	l.Currency = cur.String
	l.FuelType, l.Transmission, l.BodyType = fuel.String, trans.String, body.String
	l.City, l.Region, l.Country, l.DealerName = city.String, region.String, country.String, dealer.String
	l.ImageURLs = decodeImageURLs(images)
	l.IsActive = active == 1
	l.FirstSeenAt = parseNullTime(first)
	l.LastSeenAt = parseNullTime(last)
	l.UpdatedAt = parseNullTime(updated)
	return l, nil
}
