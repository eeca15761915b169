package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/barolog/barolog/internal/reading"
)

// maxVars keeps IN lists well under SQLite's bound-parameter limit.
const maxVars = 500

const readingColumns = `id, value, timestamp, deviceId, deviceName, osVersion,
	userId, COALESCE(synced, 0), COALESCE(isDuplicate, 0)`

// Insert appends a reading stamped with the current time and synced=false.
//
// Timestamps are kept strictly increasing per device: when the device
// already has a reading at or after now, the new reading is stamped one
// millisecond after it. This keeps (timestamp, deviceId) unique for
// bursts inside one millisecond.
func (db *DB) Insert(ctx context.Context, value float64, meta *reading.Meta, userID *string) (*reading.Reading, error) {
	r := &reading.Reading{
		Value:     value,
		Timestamp: db.now().UnixMilli(),
		UserID:    userID,
	}
	if meta != nil {
		r.DeviceID = meta.DeviceID
		r.DeviceName = meta.DeviceName
		r.OSVersion = meta.OSVersion
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reading: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM pressures WHERE COALESCE(deviceId, '') = ?`,
		r.DeviceID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to read last timestamp: %w", err)
	}
	if last.Valid && last.Int64 >= r.Timestamp {
		r.Timestamp = last.Int64 + 1
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO pressures (value, timestamp, deviceId, deviceName, osVersion, userId, synced, isDuplicate)
	VALUES (?, ?, ?, ?, ?, ?, 0, 0)`,
		r.Value,
		r.Timestamp,
		nullString(r.DeviceID),
		nullString(r.DeviceName),
		nullString(r.OSVersion),
		nullStringPtr(r.UserID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}

	if r.LocalID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r, nil
}

// Filter selects readings by time window and device.
type Filter struct {
	// SinceHours limits results to the last N hours (0 = all time)
	SinceHours int
	// DeviceIDs restricts results to these devices (empty = all devices)
	DeviceIDs []string
}

func (db *DB) where(f Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if cutoff := reading.Since(db.now(), f.SinceHours); cutoff > 0 {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, cutoff)
	}

	if len(f.DeviceIDs) > 0 {
		conditions = append(conditions, "deviceId IN ("+placeholders(len(f.DeviceIDs))+")")
		for _, id := range f.DeviceIDs {
			args = append(args, id)
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Query returns readings matching the filter ordered by timestamp ascending.
func (db *DB) Query(ctx context.Context, f Filter) ([]*reading.Reading, error) {
	where, args := db.where(f)
	query := `SELECT ` + readingColumns + ` FROM pressures` + where + ` ORDER BY timestamp ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// Unsynced returns every reading not yet written to the cloud replica,
// ordered by timestamp ascending.
func (db *DB) Unsynced(ctx context.Context) ([]*reading.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM pressures
	WHERE COALESCE(synced, 0) = 0
	ORDER BY timestamp ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// MarkSynced sets synced=1 for exactly the given local ids.
// An empty set is a no-op.
func (db *DB) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(ids); start += maxVars {
		end := start + maxVars
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		query := `UPDATE pressures SET synced = 1 WHERE id IN (` + placeholders(len(chunk)) + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark readings synced: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MergeOutcome reports what MergeFromCloud did with one remote reading.
type MergeOutcome int

const (
	// MergeInserted means no local row had the natural key.
	MergeInserted MergeOutcome = iota
	// MergeUpdated means an existing local row was overwritten.
	MergeUpdated
)

// MergeFromCloud reconciles one remote reading by natural key.
//
// If a local row with the same (timestamp, deviceId) exists its value and
// device metadata are overwritten and it is flagged synced and duplicate.
// Otherwise the reading is inserted as synced and not duplicate.
// A NULL local deviceId matches an empty remote one.
func (db *DB) MergeFromCloud(ctx context.Context, remote *reading.Reading) (MergeOutcome, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	outcome, err := mergeTx(ctx, tx, remote)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

// MergeResult counts the outcomes of a MergeBatch call.
type MergeResult struct {
	Inserted int
	Updated  int
}

// MergeBatch applies MergeFromCloud to every reading in one transaction.
func (db *DB) MergeBatch(ctx context.Context, remote []*reading.Reading) (MergeResult, error) {
	var res MergeResult
	if len(remote) == 0 {
		return res, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range remote {
		outcome, err := mergeTx(ctx, tx, r)
		if err != nil {
			return MergeResult{}, err
		}
		if outcome == MergeUpdated {
			res.Updated++
		} else {
			res.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return MergeResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func mergeTx(ctx context.Context, tx *sql.Tx, remote *reading.Reading) (MergeOutcome, error) {
	if err := remote.Validate(); err != nil {
		return 0, fmt.Errorf("invalid remote reading %s: %w", remote.Key(), err)
	}

	var id int64
	err := tx.QueryRowContext(ctx, `
	SELECT id FROM pressures
	WHERE timestamp = ? AND COALESCE(deviceId, '') = ?
	ORDER BY id ASC LIMIT 1`,
		remote.Timestamp, remote.DeviceID,
	).Scan(&id)

	switch {
	case err == sql.ErrNoRows:
		_, err := tx.ExecContext(ctx, `
		INSERT INTO pressures (value, timestamp, deviceId, deviceName, osVersion, userId, synced, isDuplicate)
		VALUES (?, ?, ?, ?, ?, ?, 1, 0)`,
			remote.Value,
			remote.Timestamp,
			nullString(remote.DeviceID),
			nullString(remote.DeviceName),
			nullString(remote.OSVersion),
			nullStringPtr(remote.UserID),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert remote reading %s: %w", remote.Key(), err)
		}
		return MergeInserted, nil

	case err != nil:
		return 0, fmt.Errorf("failed to look up reading %s: %w", remote.Key(), err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE pressures SET
		value = ?, deviceName = ?, osVersion = ?, synced = 1, isDuplicate = 1
	WHERE id = ?`,
		remote.Value,
		nullString(remote.DeviceName),
		nullString(remote.OSVersion),
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update reading %s: %w", remote.Key(), err)
	}
	return MergeUpdated, nil
}

// DistinctDevices returns the distinct device tuples over readings that
// carry a device id, ordered by device name.
func (db *DB) DistinctDevices(ctx context.Context) ([]reading.Device, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT DISTINCT deviceId, COALESCE(deviceName, ''), COALESCE(osVersion, '')
	FROM pressures
	WHERE deviceId IS NOT NULL AND deviceId != ''
	ORDER BY deviceName, deviceId`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []reading.Device
	for rows.Next() {
		var d reading.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.OSVersion); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// Stats aggregates min/max/avg/count over the filter window.
// An empty window returns the zero Stats.
func (db *DB) Stats(ctx context.Context, f Filter) (reading.Stats, error) {
	where, args := db.where(f)
	query := `SELECT MIN(value), MAX(value), AVG(value), COUNT(id) FROM pressures` + where

	var minVal, maxVal, avgVal sql.NullFloat64
	var stats reading.Stats
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&minVal, &maxVal, &avgVal, &stats.Count); err != nil {
		return reading.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	if stats.Count == 0 {
		return reading.Stats{}, nil
	}
	stats.Min = minVal.Float64
	stats.Max = maxVal.Float64
	stats.Avg = avgVal.Float64
	return stats, nil
}

// Count returns the total number of readings.
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM pressures").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return count, nil
}

// ClearAll deletes every reading.
func (db *DB) ClearAll(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM pressures"); err != nil {
		return fmt.Errorf("failed to clear readings: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes every reading outside the last sinceHours hours,
// the complement of Query with the same window, and returns how many were
// removed. sinceHours <= 0 removes nothing.
func (db *DB) PurgeOlderThan(ctx context.Context, sinceHours int) (int64, error) {
	cutoff := reading.Since(db.now(), sinceHours)
	if cutoff <= 0 {
		return 0, nil
	}

	res, err := db.conn.ExecContext(ctx, "DELETE FROM pressures WHERE timestamp <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge readings: %w", err)
	}
	return res.RowsAffected()
}

// scanReadings is a helper function to scan multiple readings from query results.
func scanReadings(rows *sql.Rows) ([]*reading.Reading, error) {
	var readings []*reading.Reading

	for rows.Next() {
		var r reading.Reading
		var deviceID, deviceName, osVersion, userID sql.NullString
		var synced, isDuplicate int

		err := rows.Scan(
			&r.LocalID,
			&r.Value,
			&r.Timestamp,
			&deviceID,
			&deviceName,
			&osVersion,
			&userID,
			&synced,
			&isDuplicate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		r.DeviceID = deviceID.String
		r.DeviceName = deviceName.String
		r.OSVersion = osVersion.String
		if userID.Valid {
			u := userID.String
			r.UserID = &u
		}
		r.Synced = synced != 0
		r.IsDuplicate = isDuplicate != 0

		readings = append(readings, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}

	return readings, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
