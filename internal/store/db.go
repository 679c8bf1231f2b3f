package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB opens a Postgres pool and pings it. The DB is returned even when the
// ping fails so callers may run degraded.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return &DB{Client: db}, db.PingContext(pingCtx)
}

// Healthy reports whether the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Migrations creates the audit trail tables. Statements are idempotent.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS session_events (
		id           TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		class_id     TEXT NOT NULL DEFAULT '',
		class_name   TEXT NOT NULL DEFAULT '',
		state        TEXT NOT NULL DEFAULT '',
		student_id   TEXT NOT NULL DEFAULT '',
		verdict      TEXT NOT NULL DEFAULT '',
		message      TEXT NOT NULL DEFAULT '',
		record_count INTEGER NOT NULL DEFAULT 0,
		occurred_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS session_events_class_idx ON session_events (class_id, occurred_at DESC)`,
	`CREATE TABLE IF NOT EXISTS committed_records (
		event_id    TEXT NOT NULL REFERENCES session_events (id) ON DELETE CASCADE,
		class_id    TEXT NOT NULL,
		student_id  TEXT NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT '',
		checkins    INTEGER NOT NULL DEFAULT 0,
		feedback    TEXT NOT NULL DEFAULT '',
		record_date TEXT NOT NULL DEFAULT '',
		record_time TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (event_id, student_id)
	)`,
}

// Execer runs a statement.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Migrate applies Migrations in order.
func Migrate(ctx context.Context, db Execer) error {
	for i, stmt := range Migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
