package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionRunning means a scrape cycle for the source is already in
// flight; the caller should skip this tick, not queue it.
var ErrSessionRunning = errors.New("a scraping session for this source is already running")

// StartSession opens a running session for the source, enforcing at most one
// running session per source. A running session older than staleAfter is
// treated as a dead process's leftover lease: it is marked failed and the new
// session takes over. The check and insert share one transaction, and a
// partial unique index on (source) WHERE status='running' backs the
// invariant at the schema level.
func (d *DB) StartSession(ctx context.Context, source string, staleAfter time.Duration) (*Session, error) {
	now := time.Now().UTC()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var runningID int64
	var startedStr string
	err = tx.QueryRowContext(ctx, `SELECT id, started_at FROM scrape_sessions WHERE source = ? AND status = 'running'`, source).Scan(&runningID, &startedStr)
	switch {
	case err == nil:
		startedAt := parseTime(startedStr)
		if staleAfter <= 0 || now.Sub(startedAt) < staleAfter {
			_ = tx.Rollback()
			return nil, ErrSessionRunning
		}
		// Stale lease takeover.
		if _, err = tx.ExecContext(ctx, `UPDATE scrape_sessions SET status = 'failed', completed_at = ?, error_message = ? WHERE id = ?`,
			fmtTime(now), "session exceeded maximum duration, taken over", runningID); err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	default:
		return nil, err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `INSERT INTO scrape_sessions (source, status, started_at) VALUES (?, 'running', ?)`, source, fmtTime(now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &Session{ID: id, Source: source, Status: SessionRunning, StartedAt: now}, nil
}

// SessionCounts carries a finished cycle's counters.
type SessionCounts struct {
	Found       int
	New         int
	Updated     int
	Reactivated int
	Deactivated int
	ParseErrors int
}

// CompleteSession transitions a running session to completed.
func (d *DB) CompleteSession(ctx context.Context, id int64, counts SessionCounts) error {
	return d.finishSession(ctx, id, SessionCompleted, counts, "")
}

// FailSession transitions a running session to failed with an error message.
// Partial reconciliation already committed stays committed.
func (d *DB) FailSession(ctx context.Context, id int64, counts SessionCounts, errMsg string) error {
	return d.finishSession(ctx, id, SessionFailed, counts, errMsg)
}

func (d *DB) finishSession(ctx context.Context, id int64, status string, counts SessionCounts, errMsg string) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE scrape_sessions
		SET status = ?, completed_at = ?, found = ?, new_count = ?, updated_count = ?, reactivated = ?, deactivated = ?, parse_errors = ?, error_message = ?
		WHERE id = ? AND status = 'running'`,
		status, fmtTime(time.Now().UTC()), counts.Found, counts.New, counts.Updated, counts.Reactivated, counts.Deactivated, counts.ParseErrors,
		nullIfEmpty(errMsg), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %d is not running", id)
	}
	return nil
}

// GetSession returns one session by id.
func (d *DB) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := d.sql.QueryRowContext(ctx, sessionColumns+" FROM scrape_sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns recent sessions, newest first, optionally filtered by source.
func (d *DB) ListSessions(ctx context.Context, source string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	q := sessionColumns + " FROM scrape_sessions"
	args := []interface{}{}
	if source != "" && source != "all" {
		q += " WHERE source = ?"
		args = append(args, source)
	}
	q += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const sessionColumns = `SELECT id, source, status, started_at, completed_at, found, new_count, updated_count, reactivated, deactivated, parse_errors, error_message`

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var started, completed, errMsg sql.NullString
	err := row.Scan(&s.ID, &s.Source, &s.Status, &started, &completed, &s.Found, &s.NewCount, &s.Updated, &s.Reactivated, &s.Deactivated, &s.ParseErrors, &errMsg)
	if err != nil {
		return s, err
	}
	s.StartedAt = parseNullTime(started)
	s.CompletedAt = parseNullTime(completed)
	s.Error = errMsg.String
	return s, nil
}
