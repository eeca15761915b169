package sync

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/barolog/barolog/internal/auth"
	"github.com/barolog/barolog/internal/cloud"
)

// Uploader pushes unsynced local readings to the replica.
type Uploader struct {
	store     Store
	replica   cloud.Replica
	auth      auth.Context
	batchSize int
	logger    *log.Logger
}

// NewUploader creates an Uploader. batchSize is clamped to
// [1, cloud.MaxBatchSize]; 0 selects the maximum.
//
// If logger is nil, a default logger writing to stderr is used.
func NewUploader(store Store, replica cloud.Replica, authCtx auth.Context, batchSize int, logger *log.Logger) *Uploader {
	if batchSize <= 0 || batchSize > cloud.MaxBatchSize {
		batchSize = cloud.MaxBatchSize
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Uploader{
		store:     store,
		replica:   replica,
		auth:      authCtx,
		batchSize: batchSize,
		logger:    logger,
	}
}

// authorize returns the current principal when it matches userID.
func authorize(a auth.Context, userID string) (auth.User, error) {
	user, ok := a.CurrentUser()
	if !ok {
		return auth.User{}, fmt.Errorf("%w: no user logged in", ErrUnauthorized)
	}
	if userID == "" || user.ID != userID {
		return auth.User{}, fmt.Errorf("%w: %q is not the current user", ErrUnauthorized, userID)
	}
	return user, nil
}

// Upload writes every unsynced reading to the replica under userID and
// returns how many were uploaded.
//
// The unsynced set is snapshotted once. Batches are committed in order and
// the first failure aborts the rest; only when every batch succeeded are
// exactly the snapshotted ids marked synced. A failed upload leaves all
// rows unsynced, and retrying rewrites the same documents.
func (u *Uploader) Upload(ctx context.Context, userID string) (int, error) {
	user, err := authorize(u.auth, userID)
	if err != nil {
		return 0, err
	}

	pending, err := u.store.Unsynced(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to list unsynced readings: %w", ErrStorage, err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := u.replica.PutUser(ctx, cloud.UserDoc{UserID: userID, Email: user.Email}); err != nil {
		u.logger.Printf("Warning: failed to update user document for %s: %v", userID, err)
	}

	ids := make([]int64, 0, len(pending))
	total := (len(pending) + u.batchSize - 1) / u.batchSize
	for i := 0; i < len(pending); i += u.batchSize {
		end := min(i+u.batchSize, len(pending))

		docs := make([]cloud.Document, 0, end-i)
		for _, r := range pending[i:end] {
			docs = append(docs, cloud.FromReading(r, userID))
			ids = append(ids, r.LocalID)
		}

		if err := u.replica.CommitBatch(ctx, userID, docs); err != nil {
			return 0, fmt.Errorf("failed to commit batch %d/%d: %w", i/u.batchSize+1, total, err)
		}
	}

	if err := u.store.MarkSynced(ctx, ids); err != nil {
		return 0, fmt.Errorf("%w: failed to mark %d readings synced: %w", ErrStorage, len(ids), err)
	}

	u.logger.Printf("Uploaded %d readings in %d batches", len(ids), total)
	return len(ids), nil
}
