package localstore

import (
	"context"
	"log"
	"os"

	"github.com/barolog/barolog/internal/reading"
)

// Store is the application-facing view of the local database.
//
// Storage failures never reach the caller: they are logged and the
// operation returns an empty or default result (nil slices, zero Stats).
// Callers that need to distinguish failure from emptiness use DB directly.
type Store struct {
	db     *DB
	logger *log.Logger
}

// NewStore wraps an open DB.
//
// If logger is nil, a default logger writing to stderr is used.
func NewStore(db *DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{db: db, logger: logger}
}

// DB returns the wrapped database.
func (s *Store) DB() *DB {
	return s.db
}

// Insert records a new reading. It returns nil when the insert failed.
func (s *Store) Insert(ctx context.Context, value float64, meta *reading.Meta, userID *string) *reading.Reading {
	r, err := s.db.Insert(ctx, value, meta, userID)
	if err != nil {
		s.logger.Printf("ERROR: insert: %v", err)
		return nil
	}
	return r
}

// Query returns readings from the last sinceHours hours (0 = all time),
// restricted to deviceIDs when non-empty, ascending by timestamp.
func (s *Store) Query(ctx context.Context, sinceHours int, deviceIDs []string) []*reading.Reading {
	readings, err := s.db.Query(ctx, Filter{SinceHours: sinceHours, DeviceIDs: deviceIDs})
	if err != nil {
		s.logger.Printf("ERROR: query: %v", err)
		return nil
	}
	return readings
}

// DistinctDevices returns the devices present in the store.
func (s *Store) DistinctDevices(ctx context.Context) []reading.Device {
	devices, err := s.db.DistinctDevices(ctx)
	if err != nil {
		s.logger.Printf("ERROR: distinct devices: %v", err)
		return nil
	}
	return devices
}

// Unsynced returns readings not yet written to the cloud replica.
func (s *Store) Unsynced(ctx context.Context) []*reading.Reading {
	readings, err := s.db.Unsynced(ctx)
	if err != nil {
		s.logger.Printf("ERROR: unsynced: %v", err)
		return nil
	}
	return readings
}

// MarkSynced flags exactly the given local ids as synced.
func (s *Store) MarkSynced(ctx context.Context, ids []int64) {
	if err := s.db.MarkSynced(ctx, ids); err != nil {
		s.logger.Printf("ERROR: mark synced (%d ids): %v", len(ids), err)
	}
}

// MergeFromCloud reconciles one remote reading by natural key.
func (s *Store) MergeFromCloud(ctx context.Context, remote *reading.Reading) {
	if _, err := s.db.MergeFromCloud(ctx, remote); err != nil {
		s.logger.Printf("ERROR: merge %s: %v", remote.Key(), err)
	}
}

// MergeBatch reconciles many remote readings in one transaction.
func (s *Store) MergeBatch(ctx context.Context, remote []*reading.Reading) MergeResult {
	res, err := s.db.MergeBatch(ctx, remote)
	if err != nil {
		s.logger.Printf("ERROR: merge batch (%d readings): %v", len(remote), err)
		return MergeResult{}
	}
	return res
}

// Stats aggregates readings over the window. Failures yield zero Stats.
func (s *Store) Stats(ctx context.Context, sinceHours int, deviceIDs []string) reading.Stats {
	stats, err := s.db.Stats(ctx, Filter{SinceHours: sinceHours, DeviceIDs: deviceIDs})
	if err != nil {
		s.logger.Printf("ERROR: stats: %v", err)
		return reading.Stats{}
	}
	return stats
}

// Count returns the total number of readings, 0 on failure.
func (s *Store) Count(ctx context.Context) int {
	n, err := s.db.Count(ctx)
	if err != nil {
		s.logger.Printf("ERROR: count: %v", err)
		return 0
	}
	return n
}

// ClearAll deletes every reading.
func (s *Store) ClearAll(ctx context.Context) {
	if err := s.db.ClearAll(ctx); err != nil {
		s.logger.Printf("ERROR: clear all: %v", err)
		return
	}
	s.logger.Printf("All readings deleted")
}

// PurgeOlderThan deletes readings outside the last sinceHours hours.
func (s *Store) PurgeOlderThan(ctx context.Context, sinceHours int) int64 {
	n, err := s.db.PurgeOlderThan(ctx, sinceHours)
	if err != nil {
		s.logger.Printf("ERROR: purge: %v", err)
		return 0
	}
	if n > 0 {
		s.logger.Printf("Purged %d readings older than %dh", n, sinceHours)
	}
	return n
}
