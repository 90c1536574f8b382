// Package storage keeps the local SQLite database: the run ledger (run summaries and the
// catalog writes each run performed) and a local catalog used for dry runs.
package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id                   INTEGER PRIMARY KEY,
  run_id               TEXT NOT NULL UNIQUE,
  merchant             TEXT NOT NULL,
  phase                TEXT NOT NULL,
  status               TEXT NOT NULL,
  running              INTEGER NOT NULL CHECK (running IN (0,1)),
  stopped              INTEGER NOT NULL CHECK (stopped IN (0,1)),
  stop_reason          TEXT,
  seen                 INTEGER NOT NULL DEFAULT 0,
  uploaded             INTEGER NOT NULL DEFAULT 0,
  skipped              TEXT,
  upload_failed        INTEGER NOT NULL DEFAULT 0,
  deleted              INTEGER NOT NULL DEFAULT 0,
  delete_failed        INTEGER NOT NULL DEFAULT 0,
  already_draft        INTEGER NOT NULL DEFAULT 0,
  reactivated          INTEGER NOT NULL DEFAULT 0,
  translation_failures INTEGER NOT NULL DEFAULT 0,
  errors               TEXT,
  started_at           TEXT NOT NULL,
  finished_at          TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_merchant ON runs(merchant, started_at);
CREATE TABLE IF NOT EXISTS sync_changes (
  id          INTEGER PRIMARY KEY,
  occurred_at TEXT NOT NULL,
  run_id      TEXT NOT NULL,
  merchant    TEXT NOT NULL,
  item_key    TEXT NOT NULL,
  target_id   TEXT,
  title       TEXT,
  action      TEXT NOT NULL CHECK (action IN ('created','deleted','drafted','reactivated'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON sync_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_merchant ON sync_changes(merchant, occurred_at);
CREATE TABLE IF NOT EXISTS local_groups (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS local_listings (
  id              INTEGER PRIMARY KEY,
  sku             TEXT NOT NULL,
  title           TEXT NOT NULL,
  description     TEXT,
  seo_title       TEXT,
  seo_description TEXT,
  price           INTEGER NOT NULL,
  weight_kg       REAL NOT NULL DEFAULT 0,
  images          TEXT,
  source_url      TEXT,
  vendor          TEXT,
  tags            TEXT,
  status          TEXT NOT NULL CHECK (status IN ('active','draft','archived')),
  created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_sku ON local_listings(sku);
CREATE TABLE IF NOT EXISTS local_listing_groups (
  listing_id INTEGER NOT NULL REFERENCES local_listings(id) ON DELETE CASCADE,
  group_id   INTEGER NOT NULL REFERENCES local_groups(id) ON DELETE CASCADE,
  PRIMARY KEY (listing_id, group_id)
);
`

// Open opens (creating if needed) the database at path. ":memory:" gives a private
// in-memory database, used by tests.
func Open(path string) (*DB, error) {
	memory := path == ":memory:"
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if memory {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

// migrate adds columns introduced after a database was first created.
func migrate(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'already_draft'`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := db.Exec(`ALTER TABLE runs ADD COLUMN already_draft INTEGER NOT NULL DEFAULT 0`)
	return err
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

const timeLayout = "2006-01-02 15:04:05.000000"

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
