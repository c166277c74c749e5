package storage

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS listings (
  id             INTEGER PRIMARY KEY,
  source         TEXT NOT NULL,
  url            TEXT NOT NULL,
  make           TEXT,
  model          TEXT,
  variant        TEXT,
  year           INTEGER NOT NULL DEFAULT 0,
  price          INTEGER NOT NULL DEFAULT 0,
  currency       TEXT,
  mileage        INTEGER NOT NULL DEFAULT 0,
  fuel_type      TEXT,
  transmission   TEXT,
  body_type      TEXT,
  city           TEXT,
  region         TEXT,
  country        TEXT,
  dealer_name    TEXT,
  image_urls     TEXT,
  is_active      INTEGER NOT NULL DEFAULT 1 CHECK (is_active IN (0,1)),
  run_id         INTEGER NOT NULL DEFAULT 0,
  first_seen_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(source, url)
);
CREATE INDEX IF NOT EXISTS idx_listings_source_active ON listings(source, is_active);
CREATE INDEX IF NOT EXISTS idx_listings_make_model ON listings(make, model);
CREATE TABLE IF NOT EXISTS price_history (
  id          INTEGER PRIMARY KEY,
  listing_id  INTEGER NOT NULL REFERENCES listings(id),
  price       INTEGER NOT NULL,
  currency    TEXT,
  observed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_price_history_listing ON price_history(listing_id, observed_at);
CREATE TABLE IF NOT EXISTS alerts (
  id                        INTEGER PRIMARY KEY,
  name                      TEXT NOT NULL,
  make                      TEXT,
  model                     TEXT,
  min_year                  INTEGER,
  max_year                  INTEGER,
  min_price                 INTEGER,
  max_price                 INTEGER,
  max_mileage               INTEGER,
  fuel_type                 TEXT,
  transmission              TEXT,
  body_type                 TEXT,
  city                      TEXT,
  is_active                 INTEGER NOT NULL DEFAULT 1 CHECK (is_active IN (0,1)),
  notification_frequency    TEXT NOT NULL DEFAULT 'immediate' CHECK (notification_frequency IN ('immediate','daily')),
  max_notifications_per_day INTEGER NOT NULL DEFAULT 0,
  last_triggered_at         DATETIME,
  created_at                DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at                DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS notifications (
  id           INTEGER PRIMARY KEY,
  alert_id     INTEGER NOT NULL REFERENCES alerts(id),
  listing_id   INTEGER NOT NULL REFERENCES listings(id),
  summary      TEXT NOT NULL,
  match_score  REAL NOT NULL DEFAULT 0,
  is_read      INTEGER NOT NULL DEFAULT 0 CHECK (is_read IN (0,1)),
  suppressed   INTEGER NOT NULL DEFAULT 0 CHECK (suppressed IN (0,1)),
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  delivered_at DATETIME,
  UNIQUE(alert_id, listing_id)
);
CREATE INDEX IF NOT EXISTS idx_notifications_alert_day ON notifications(alert_id, created_at);
CREATE TABLE IF NOT EXISTS scrape_sessions (
  id            INTEGER PRIMARY KEY,
  source        TEXT NOT NULL,
  status        TEXT NOT NULL CHECK (status IN ('running','completed','failed')),
  started_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  completed_at  DATETIME,
  found         INTEGER NOT NULL DEFAULT 0,
  new_count     INTEGER NOT NULL DEFAULT 0,
  updated_count INTEGER NOT NULL DEFAULT 0,
  reactivated   INTEGER NOT NULL DEFAULT 0,
  deactivated   INTEGER NOT NULL DEFAULT 0,
  parse_errors  INTEGER NOT NULL DEFAULT 0,
  error_message TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_running ON scrape_sessions(source) WHERE status = 'running';
CREATE INDEX IF NOT EXISTS idx_sessions_source_time ON scrape_sessions(source, started_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// parseTime handles both SQLite CURRENT_TIMESTAMP format and RFC3339.
func parseTime(s string) time.Time {
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return parseTime(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
