// Package store persists sessions, credentials and domain records in
// SQLite. All writes are single statements; there are no multi-step
// transactions to leave partial state behind.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// PersistenceError wraps a failed read or write. Callers surface it
// verbatim; nothing in this package retries.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc's driver is not safe for concurrent writes over multiple
	// connections on one file.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS voice_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		transcript TEXT NOT NULL DEFAULT '',
		audio_ref TEXT NOT NULL DEFAULT '',
		intent_type TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		parsed_data TEXT NOT NULL DEFAULT '',
		execution_status TEXT NOT NULL DEFAULT 'pending',
		execution_result TEXT NOT NULL DEFAULT '',
		executed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_voice_sessions_user ON voice_sessions(user_id);

	CREATE TABLE IF NOT EXISTS user_integrations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expires_at TEXT,
		provider_account TEXT NOT NULL DEFAULT '',
		scopes TEXT NOT NULL DEFAULT '',
		connected_at TEXT NOT NULL,
		disconnected_at TEXT,
		sync_status TEXT NOT NULL DEFAULT 'idle',
		last_sync_at TEXT,
		last_sync_error TEXT NOT NULL DEFAULT '',
		UNIQUE(user_id, provider)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL DEFAULT '',
		store TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		where_met TEXT NOT NULL DEFAULT '',
		why TEXT NOT NULL DEFAULT '',
		when_met TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		time TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		is_all_day INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS project_todos (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		due_date TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT 'medium',
		completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		target_account TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS emails (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		external_id TEXT NOT NULL,
		sender TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		preview TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL DEFAULT '',
		is_read INTEGER NOT NULL DEFAULT 0,
		label TEXT NOT NULL DEFAULT '',
		provider_account TEXT NOT NULL DEFAULT '',
		UNIQUE(user_id, provider, external_id)
	);

	CREATE TABLE IF NOT EXISTS synced_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		time TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		is_all_day INTEGER NOT NULL DEFAULT 0,
		UNIQUE(user_id, provider, external_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	return &t
}
