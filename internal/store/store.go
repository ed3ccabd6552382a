// Package store persists crate's state in SQLite: the tag-to-album mapping,
// the transient scan event table, Last.fm credentials and the scan history.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row addressed by key does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database shared by all repositories.
type Store struct {
	db *sqlx.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS albums (
		app_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (app_id, tag_id)
	);

	CREATE TABLE IF NOT EXISTS scan_events (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		received_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_events_app ON scan_events(app_id, received_at);

	CREATE TABLE IF NOT EXISTS credentials (
		app_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		api_key TEXT NOT NULL,
		api_secret TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (app_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		app_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		session_key TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (app_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		state TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		submitted INTEGER NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0,
		ignored INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		processed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_history_app ON scan_history(app_id, processed_at);
`

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps in-memory databases consistent and
	// serializes writers, which is all a single consumer needs.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NormalizeTag trims whitespace and applies NFC so the same physical tag
// always maps to the same key regardless of how the reader encoded it.
func NormalizeTag(tag string) string {
	return norm.NFC.String(strings.TrimSpace(tag))
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
