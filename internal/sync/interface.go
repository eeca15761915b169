package sync

import (
	"context"

	"github.com/barolog/barolog/internal/localstore"
	"github.com/barolog/barolog/internal/reading"
)

// Store is the local storage the sync phases read and write.
//
// *localstore.DB satisfies it. Errors are returned rather than swallowed so
// the engine can log them as storage failures.
type Store interface {
	// Unsynced returns every reading not yet written to the replica.
	Unsynced(ctx context.Context) ([]*reading.Reading, error)

	// MarkSynced flags exactly the given local ids as synced.
	MarkSynced(ctx context.Context, ids []int64) error

	// MergeBatch reconciles remote readings by natural key in one
	// transaction.
	MergeBatch(ctx context.Context, remote []*reading.Reading) (localstore.MergeResult, error)
}

// Refresher is the device projection rebuilt after each cycle.
type Refresher interface {
	Refresh(ctx context.Context)
}

// Observer is notified with the result of every completed cycle.
type Observer func(Result)
