package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// ErrDegenerateAlert rejects alerts with no filter dimension set: such an
// alert matches every listing and only produces noise.
var ErrDegenerateAlert = errors.New("alert must set at least one filter")

// ValidateAlert checks an alert before it is persisted.
func ValidateAlert(a *Alert) error {
	if a.Name == "" {
		return errors.New("alert name is required")
	}
	if a.NotificationFrequency == "" {
		a.NotificationFrequency = FrequencyImmediate
	}
	if a.NotificationFrequency != FrequencyImmediate && a.NotificationFrequency != FrequencyDaily {
		return errors.New("notification_frequency must be immediate or daily")
	}
	if a.MaxNotificationsPerDay < 0 {
		return errors.New("max_notifications_per_day must be >= 0")
	}
	if !a.HasFilters() {
		return ErrDegenerateAlert
	}
	return nil
}

// HasFilters reports whether any filter dimension is set.
func (a *Alert) HasFilters() bool {
	return a.Make != nil || a.Model != nil || a.MinYear != nil || a.MaxYear != nil ||
		a.MinPrice != nil || a.MaxPrice != nil || a.MaxMileage != nil ||
		a.FuelType != nil || a.Transmission != nil || a.BodyType != nil || a.City != nil
}

// CreateAlert validates and inserts an alert, returning its id.
func (d *DB) CreateAlert(ctx context.Context, a *Alert) (int64, error) {
	if err := ValidateAlert(a); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := d.sql.ExecContext(ctx, `INSERT INTO alerts
		(name, make, model, min_year, max_year, min_price, max_price, max_mileage, fuel_type, transmission, body_type, city,
		 is_active, notification_frequency, max_notifications_per_day, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,1,?,?,?,?)`,
		a.Name, a.Make, a.Model, a.MinYear, a.MaxYear, a.MinPrice, a.MaxPrice, a.MaxMileage,
		a.FuelType, a.Transmission, a.BodyType, a.City,
		a.NotificationFrequency, a.MaxNotificationsPerDay, fmtTime(now), fmtTime(now))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	a.IsActive = true
	a.CreatedAt, a.UpdatedAt = now, now
	return id, nil
}

// UpdateAlert validates and replaces an alert's filters and settings.
func (d *DB) UpdateAlert(ctx context.Context, a *Alert) error {
	if err := ValidateAlert(a); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := d.sql.ExecContext(ctx, `UPDATE alerts SET name = ?, make = ?, model = ?, min_year = ?, max_year = ?,
		min_price = ?, max_price = ?, max_mileage = ?, fuel_type = ?, transmission = ?, body_type = ?, city = ?,
		notification_frequency = ?, max_notifications_per_day = ?, updated_at = ? WHERE id = ?`,
		a.Name, a.Make, a.Model, a.MinYear, a.MaxYear, a.MinPrice, a.MaxPrice, a.MaxMileage,
		a.FuelType, a.Transmission, a.BodyType, a.City,
		a.NotificationFrequency, a.MaxNotificationsPerDay, fmtTime(now), a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetAlertActive toggles an alert without deleting its history.
func (d *DB) SetAlertActive(ctx context.Context, id int64, active bool) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE alerts SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteAlert removes an alert and its notifications.
func (d *DB) DeleteAlert(ctx context.Context, id int64) error {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM notifications WHERE alert_id = ?`, id); err != nil {
		return err
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id); err != nil {
		return err
	}
	if err = requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAlert returns one alert by id.
func (d *DB) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	row := d.sql.QueryRowContext(ctx, alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAlerts returns alerts, optionally only active ones.
func (d *DB) ListAlerts(ctx context.Context, activeOnly bool) ([]Alert, error) {
	q := alertColumns + " FROM alerts"
	if activeOnly {
		q += " WHERE is_active = 1"
	}
	q += " ORDER BY id"
	rows, err := d.sql.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TouchAlertTriggered records that an alert fired.
func (d *DB) TouchAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE alerts SET last_triggered_at = ? WHERE id = ?`, fmtTime(at), id)
	return err
}

const alertColumns = `SELECT id, name, make, model, min_year, max_year, min_price, max_price, max_mileage,
	fuel_type, transmission, body_type, city, is_active, notification_frequency, max_notifications_per_day,
	last_triggered_at, created_at, updated_at`

func scanAlert(row rowScanner) (Alert, error) {
	var a Alert
	var mk, md, fuel, trans, body, city sql.NullString
	var minYear, maxYear, minPrice, maxPrice, maxMileage sql.NullInt64
	var active int
	var triggered, created, updated sql.NullString
	err := row.Scan(&a.ID, &a.Name, &mk, &md, &minYear, &maxYear, &minPrice, &maxPrice, &maxMileage,
		&fuel, &trans, &body, &city, &active, &a.NotificationFrequency, &a.MaxNotificationsPerDay,
		&triggered, &created, &updated)
	if err != nil {
		return a, err
	}
	a.Make = nullStr(mk)
	a.Model = nullStr(md)
	a.FuelType = nullStr(fuel)
	a.Transmission = nullStr(trans)
	a.BodyType = nullStr(body)
	a.City = nullStr(city)
	a.MinYear = nullInt(minYear)
	a.MaxYear = nullInt(maxYear)
	a.MinPrice = nullInt(minPrice)
	a.MaxPrice = nullInt(maxPrice)
	a.MaxMileage = nullInt(maxMileage)
	a.IsActive = active == 1
	a.LastTriggeredAt = parseNullTime(triggered)
	a.CreatedAt = parseNullTime(created)
	a.UpdatedAt = parseNullTime(updated)
	return a, nil
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlertNotFound
	}
	return nil
}
