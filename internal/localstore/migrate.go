package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one ordered schema step. Every step must be safe to run
// against a database where its effect is already present, because legacy
// databases carry columns without a matching schema_version row.
type migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{
		Version:     1,
		Description: "create pressures table",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS pressures (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				value REAL NOT NULL,
				timestamp INTEGER NOT NULL
			)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "add device metadata columns",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if err := addColumn(ctx, tx, "pressures", "deviceId", "TEXT"); err != nil {
				return err
			}
			if err := addColumn(ctx, tx, "pressures", "deviceName", "TEXT"); err != nil {
				return err
			}
			return addColumn(ctx, tx, "pressures", "osVersion", "TEXT")
		},
	},
	{
		Version:     3,
		Description: "add owner column",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return addColumn(ctx, tx, "pressures", "userId", "TEXT")
		},
	},
	{
		Version:     4,
		Description: "add sync state columns",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if err := addColumn(ctx, tx, "pressures", "synced", "INTEGER DEFAULT 0"); err != nil {
				return err
			}
			return addColumn(ctx, tx, "pressures", "isDuplicate", "INTEGER DEFAULT 0")
		},
	},
	{
		Version:     5,
		Description: "index natural key and sync state",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_pressures_natural_key
			    ON pressures(timestamp, deviceId);
			CREATE INDEX IF NOT EXISTS idx_pressures_synced
			    ON pressures(synced);
			`)
			return err
		},
	},
}

// LatestSchemaVersion is the version a fully migrated database reports.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// Migrate applies every schema step newer than the recorded version.
// This is idempotent - safe to call multiple times.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Description, err)
		}
	}

	return nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// SchemaVersion returns the highest applied schema version, 0 for a fresh
// or legacy database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := db.conn.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// addColumn adds a column unless the table already has it.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	exists, err := hasColumn(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	return nil
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}
