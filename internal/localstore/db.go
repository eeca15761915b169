// Package localstore provides the embedded SQLite time-series store for
// pressure readings.
//
// The store runs SQLite in embedded mode (ncruces/go-sqlite3, pure Go via
// wazero) with WAL enabled. All statements go through a single connection,
// so the store serializes its own operations and callers need no locking.
//
// Architecture:
//   - Database file: <data dir>/barolog.db
//   - Table: pressures (one row per reading) + schema_version
//   - Indexes: (timestamp, deviceId) for natural-key lookups, synced for
//     the upload scan
//
// Two layers are exposed. DB returns explicit errors and is what tests and
// the migration code use. Store wraps DB for the rest of the application:
// it logs storage failures and returns empty results instead.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection holding the pressures table.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Option configures a DB at open time.
type Option func(*DB)

// WithClock overrides the wall clock used for insert timestamps and time
// window filters.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open creates a new database connection at the specified path and brings
// the schema up to date.
//
// Opening is idempotent: the same file may be opened again by a fresh
// handle, and a database written by an older schema version is extended in
// place.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := localstore.Open(ctx, "/var/lib/barolog/barolog.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the store serializes every operation itself.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}

	if _, err := db.conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}
