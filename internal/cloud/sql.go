package cloud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQL is a replica backed by database/sql. With the sqlite3 driver several
// machines can share one file (network share, synced folder); with the
// libsql driver it talks to a Turso/libSQL server.
type SQL struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	last_sync INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS readings (
	user_id TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	value REAL,
	timestamp INTEGER,
	device_id TEXT NOT NULL DEFAULT '',
	device_name TEXT NOT NULL DEFAULT '',
	os_version TEXT NOT NULL DEFAULT '',
	owner_id TEXT NOT NULL DEFAULT '',
	is_duplicate INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, doc_id)
);
`

// OpenSQL opens a SQL replica using the named driver and DSN and creates
// the replica tables if needed.
//
// Example:
//
//	r, err := cloud.OpenSQL(ctx, "sqlite3", "file:/mnt/share/barolog-cloud.db")
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open replica: %w", err)
	}

	if driver == "sqlite3" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping replica: %w", err)
	}

	for _, stmt := range strings.Split(sqlSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create replica schema: %w", err)
		}
	}

	return &SQL{conn: conn, driver: driver, now: time.Now}, nil
}

// GetUser implements Replica.GetUser.
func (r *SQL) GetUser(ctx context.Context, userID string) (*UserDoc, error) {
	var (
		doc      UserDoc
		lastSync int64
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT user_id, email, last_sync FROM users WHERE user_id = ?`, userID,
	).Scan(&doc.UserID, &doc.Email, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, r.mapErr(fmt.Errorf("failed to get user: %w", err))
	}

	doc.LastSync = time.UnixMilli(lastSync).UTC()
	return &doc, nil
}

// PutUser implements Replica.PutUser. An empty email keeps the stored one.
func (r *SQL) PutUser(ctx context.Context, doc UserDoc) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO users (user_id, email, last_sync) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = CASE WHEN excluded.email = '' THEN users.email ELSE excluded.email END,
			last_sync = excluded.last_sync
	`, doc.UserID, doc.Email, r.now().UnixMilli())
	if err != nil {
		return r.mapErr(fmt.Errorf("failed to put user: %w", err))
	}
	return nil
}

// CommitBatch implements Replica.CommitBatch. The batch runs in one
// transaction.
func (r *SQL) CommitBatch(ctx context.Context, userID string, docs []Document) error {
	if len(docs) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return r.mapErr(fmt.Errorf("failed to begin batch: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (
			user_id, doc_id, value, timestamp, device_id, device_name,
			os_version, owner_id, is_duplicate, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, doc_id) DO UPDATE SET
			value = excluded.value,
			timestamp = excluded.timestamp,
			device_id = excluded.device_id,
			device_name = excluded.device_name,
			os_version = excluded.os_version,
			owner_id = excluded.owner_id,
			is_duplicate = excluded.is_duplicate,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return r.mapErr(fmt.Errorf("failed to prepare batch: %w", err))
	}
	defer func() { _ = stmt.Close() }()

	now := r.now().UnixMilli()
	for _, doc := range docs {
		_, err := stmt.ExecContext(ctx,
			userID,
			doc.ID,
			nullFloat(doc.Value),
			nullInt(doc.Timestamp),
			doc.DeviceID,
			doc.DeviceName,
			doc.OSVersion,
			doc.UserID,
			doc.IsDuplicate,
			now,
			now,
		)
		if err != nil {
			return r.mapErr(fmt.Errorf("failed to write %s: %w", doc.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return r.mapErr(fmt.Errorf("failed to commit batch: %w", err))
	}
	return nil
}

// ListReadings implements Replica.ListReadings.
func (r *SQL) ListReadings(ctx context.Context, userID string) ([]Document, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT doc_id, value, timestamp, device_id, device_name, os_version,
		       owner_id, is_duplicate, created_at, updated_at
		FROM readings
		WHERE user_id = ?
		ORDER BY doc_id
	`, userID)
	if err != nil {
		return nil, r.mapErr(fmt.Errorf("failed to list readings: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			value     sql.NullFloat64
			ts        sql.NullInt64
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(
			&doc.ID, &value, &ts, &doc.DeviceID, &doc.DeviceName,
			&doc.OSVersion, &doc.UserID, &doc.IsDuplicate, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if value.Valid {
			v := value.Float64
			doc.Value = &v
		}
		if ts.Valid {
			t := ts.Int64
			doc.Timestamp = &t
		}
		doc.CreatedAt = time.UnixMilli(createdAt).UTC()
		doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapErr(fmt.Errorf("failed to iterate readings: %w", err))
	}
	return docs, nil
}

// Close implements Replica.Close.
func (r *SQL) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// mapErr translates driver errors that mean "access refused" into
// ErrPermissionDenied. Everything else stays transient.
func (r *SQL) mapErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "readonly"),
		strings.Contains(msg, "read-only"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return err
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
