// Package sqlite implements the store repositories on SQLite.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection. Writes take the lock exclusively.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		candidate_id TEXT NOT NULL,
		candidate_name TEXT NOT NULL DEFAULT '',
		candidate_email TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		start_ms INTEGER NOT NULL,
		end_ms INTEGER,
		status TEXT NOT NULL DEFAULT 'active',
		integrity_score INTEGER,
		total_events INTEGER NOT NULL DEFAULT 0,
		focus_violations INTEGER NOT NULL DEFAULT 0,
		object_violations INTEGER NOT NULL DEFAULT 0,
		multiple_person_violations INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_ms INTEGER NOT NULL,
		updated_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS candidates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		position TEXT NOT NULL,
		interview_ms INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'scheduled',
		notes TEXT NOT NULL DEFAULT '',
		created_ms INTEGER NOT NULL,
		updated_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		ts_ms INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		confidence REAL,
		severity TEXT NOT NULL,
		description TEXT NOT NULL,
		coordinates TEXT,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_ms INTEGER,
		created_ms INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_candidate ON sessions(candidate_id);
	CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
	CREATE INDEX IF NOT EXISTS idx_candidates_interview ON candidates(interview_ms);
	CREATE INDEX IF NOT EXISTS idx_events_session_ts ON events(session_id, ts_ms);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_ms);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func toMs(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMs(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMs(n.Int64)
	return &t
}
