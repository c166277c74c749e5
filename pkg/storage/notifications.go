package storage

import (
	"context"
	"database/sql"
	"time"
)

// CreateNotification records a match for (alertID, listingID). At most one
// row ever exists per pair: re-matching an already-notified pair returns
// created=false. The daily cap check and the insert happen inside one
// transaction so concurrent matches cannot exceed the cap. Matches arriving
// over the cap are persisted as suppressed (matched-but-not-delivered).
func (d *DB) CreateNotification(ctx context.Context, alertID, listingID int64, summary string, score float64, dailyCap int) (*Notification, bool, error) {
	now := time.Now().UTC()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM notifications WHERE alert_id = ? AND listing_id = ?`, alertID, listingID).Scan(&existingID)
	if err == nil {
		_ = tx.Rollback()
		return nil, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}
	err = nil

	suppressed := false
	if dailyCap > 0 {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		var todayCount int
		if err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notifications WHERE alert_id = ? AND suppressed = 0 AND created_at >= ?`,
			alertID, fmtTime(dayStart)).Scan(&todayCount); err != nil {
			return nil, false, err
		}
		suppressed = todayCount >= dailyCap
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `INSERT INTO notifications (alert_id, listing_id, summary, match_score, suppressed, created_at)
		VALUES (?,?,?,?,?,?)`, alertID, listingID, summary, score, boolToInt(suppressed), fmtTime(now))
	if err != nil {
		return nil, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE alerts SET last_triggered_at = ? WHERE id = ?`, fmtTime(now), alertID); err != nil {
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, false, err
	}

	return &Notification{
		ID: id, AlertID: alertID, ListingID: listingID,
		Summary: summary, MatchScore: score,
		Suppressed: suppressed, CreatedAt: now,
	}, true, nil
}

// ListNotificationsOptions controls notification selection.
type ListNotificationsOptions struct {
	UnreadOnly bool
	AlertID    int64
	Limit      int
}

// ListNotifications returns notifications, newest first.
func (d *DB) ListNotifications(ctx context.Context, opts ListNotificationsOptions) ([]Notification, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.UnreadOnly {
		where += " AND is_read = 0"
	}
	if opts.AlertID > 0 {
		where += " AND alert_id = ?"
		args = append(args, opts.AlertID)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	q := notificationColumns + " FROM notifications " + where + " ORDER BY created_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// PendingDeliveries returns unsuppressed notifications not yet delivered,
// restricted to alerts with the given notification frequency.
func (d *DB) PendingDeliveries(ctx context.Context, frequency string) ([]Notification, error) {
	q := notificationColumns + ` FROM notifications
		WHERE suppressed = 0 AND delivered_at IS NULL
		AND alert_id IN (SELECT id FROM alerts WHERE notification_frequency = ?)
		ORDER BY created_at, id`
	rows, err := d.sql.QueryContext(ctx, q, frequency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkDelivered stamps a notification as handed to the delivery channel.
func (d *DB) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE notifications SET delivered_at = ? WHERE id = ?`, fmtTime(at), id)
	return err
}

// MarkNotificationRead marks one notification as read.
func (d *DB) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification as read and
// returns how many were affected.
func (d *DB) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE is_read = 0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const notificationColumns = `SELECT id, alert_id, listing_id, summary, match_score, is_read, suppressed, created_at, delivered_at`

func scanNotification(row rowScanner) (Notification, error) {
	var n Notification
	var isRead, suppressed int
	var created, delivered sql.NullString
	err := row.Scan(&n.ID, &n.AlertID, &n.ListingID, &n.Summary, &n.MatchScore, &isRead, &suppressed, &created, &delivered)
	if err != nil {
		return n, err
	}
	n.IsRead = isRead == 1
	n.Suppressed = suppressed == 1
	n.CreatedAt = parseNullTime(created)
	n.DeliveredAt = parseNullTime(delivered)
	return n, nil
}
