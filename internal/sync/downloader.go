package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/barolog/barolog/internal/auth"
	"github.com/barolog/barolog/internal/cloud"
	"github.com/barolog/barolog/internal/reading"
)

// Downloader pulls the user's replica into the local store.
type Downloader struct {
	store   Store
	replica cloud.Replica
	auth    auth.Context
	logger  *log.Logger
}

// DownloadResult counts what one download did.
type DownloadResult struct {
	Inserted int
	Updated  int
	// Skipped counts documents missing value or timestamp, or carrying an
	// invalid one.
	Skipped int
}

// Merged returns how many documents were merged locally.
func (r DownloadResult) Merged() int {
	return r.Inserted + r.Updated
}

// NewDownloader creates a Downloader.
//
// If logger is nil, a default logger writing to stderr is used.
func NewDownloader(store Store, replica cloud.Replica, authCtx auth.Context, logger *log.Logger) *Downloader {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Downloader{
		store:   store,
		replica: replica,
		auth:    authCtx,
		logger:  logger,
	}
}

// Download merges every replica document of userID into the local store
// and returns how many were merged.
func (d *Downloader) Download(ctx context.Context, userID string) (int, error) {
	res, err := d.DownloadDetailed(ctx, userID)
	return res.Merged(), err
}

// DownloadDetailed is Download with per-outcome counts.
//
// A user without a replica document has never synced; that is not an
// error and nothing is merged.
func (d *Downloader) DownloadDetailed(ctx context.Context, userID string) (DownloadResult, error) {
	var res DownloadResult

	if _, err := authorize(d.auth, userID); err != nil {
		return res, err
	}

	if _, err := d.replica.GetUser(ctx, userID); err != nil {
		if errors.Is(err, cloud.ErrNotFound) {
			d.logger.Printf("No replica for user %s yet", userID)
			return res, nil
		}
		return res, fmt.Errorf("failed to get user document: %w", err)
	}

	docs, err := d.replica.ListReadings(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("failed to list replica readings: %w", err)
	}

	remote := make([]*reading.Reading, 0, len(docs))
	for i := range docs {
		r, err := docs[i].ToReading(userID)
		if err == nil {
			err = r.Validate()
		}
		if err != nil {
			d.logger.Printf("Warning: skipping document %s: %v", docs[i].ID, err)
			res.Skipped++
			continue
		}
		remote = append(remote, r)
	}

	merged, err := d.store.MergeBatch(ctx, remote)
	if err != nil {
		return res, fmt.Errorf("%w: failed to merge %d readings: %w", ErrStorage, len(remote), err)
	}
	res.Inserted = merged.Inserted
	res.Updated = merged.Updated

	d.logger.Printf("Downloaded %d readings (new=%d, updated=%d, skipped=%d)",
		res.Merged(), res.Inserted, res.Updated, res.Skipped)
	return res, nil
}
