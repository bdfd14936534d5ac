package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the journal's Postgres connection pool
type DB struct {
	*sql.DB
}

// NewDB opens and pings a Postgres database
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS job_events (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL,
	at TIMESTAMPTZ NOT NULL DEFAULT now(),
	from_status TEXT,
	to_status TEXT NOT NULL,
	reason TEXT NOT NULL,
	meta_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS job_events_job_id_at ON job_events (job_id, at DESC);
`

// EnsureSchema creates the journal tables if they are missing
func (db *DB) EnsureSchema() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
