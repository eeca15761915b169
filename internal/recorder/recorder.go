// Package recorder runs the periodic reading loop.
//
// The recorder:
// 1. Reads a value from the sensor source every interval
// 2. Inserts it into the local store with this device's identity
// 3. Triggers a background sync every SyncEvery inserts while a user is
//    logged in
// 4. Periodically purges readings outside the retention window
// 5. Handles graceful shutdown
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/barolog/barolog/internal/device"
	"github.com/barolog/barolog/internal/reading"
	"github.com/barolog/barolog/internal/sensor"
)

// Store is the subset of the local store the recorder writes to.
type Store interface {
	Insert(ctx context.Context, value float64, meta *reading.Meta, userID *string) *reading.Reading
	PurgeOlderThan(ctx context.Context, sinceHours int) int64
}

// Trigger starts a sync cycle in the background.
type Trigger interface {
	Trigger(ctx context.Context, userID string)
}

// Config holds configuration for the recorder.
type Config struct {
	// Interval is the time between readings.
	Interval time.Duration

	// SyncEvery triggers a sync after this many inserts. 0 disables it.
	SyncEvery int

	// RetentionHours purges readings older than this many hours. 0 keeps
	// everything.
	RetentionHours int

	// PurgeInterval is how often the retention purge runs.
	PurgeInterval time.Duration

	// UserID reports the logged-in user. Readings recorded while logged
	// out carry no owner and do not trigger sync.
	UserID func() (string, bool)

	// OnRecord is called after every successful insert. Optional.
	OnRecord func(*reading.Reading)

	// Logger for recorder activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:      2 * time.Second,
		SyncEvery:     10,
		PurgeInterval: time.Hour,
		Logger:        log.New(os.Stderr, "[recorder] ", log.LstdFlags),
	}
}

// Recorder records readings from a source into the store.
type Recorder struct {
	store    Store
	source   sensor.Source
	identity device.IdentityProvider
	syncer   Trigger
	config   *Config

	mu       sync.Mutex
	meta     *reading.Meta
	inserted int
}

// New creates a recorder. syncer may be nil to record without syncing.
func New(store Store, source sensor.Source, identity device.IdentityProvider, syncer Trigger, config *Config) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.PurgeInterval <= 0 {
		config.PurgeInterval = defaults.PurgeInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.UserID == nil {
		config.UserID = func() (string, bool) { return "", false }
	}

	return &Recorder{
		store:    store,
		source:   source,
		identity: identity,
		syncer:   syncer,
		config:   config,
	}, nil
}

// Inserted returns how many readings this recorder has stored.
func (r *Recorder) Inserted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserted
}

// Run records one reading per interval until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	if _, err := r.deviceMeta(); err != nil {
		return err
	}

	r.config.Logger.Printf("Recording every %v (sync every %d inserts)", r.config.Interval, r.config.SyncEvery)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	var purge <-chan time.Time
	if r.config.RetentionHours > 0 {
		r.Purge(ctx)
		purgeTicker := time.NewTicker(r.config.PurgeInterval)
		defer purgeTicker.Stop()
		purge = purgeTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.config.Logger.Printf("Recorder stopped after %d readings", r.Inserted())
			return nil

		case <-ticker.C:
			if _, err := r.RecordOnce(ctx); err != nil && !errors.Is(err, sensor.ErrNoData) {
				r.config.Logger.Printf("Warning: %v", err)
			}

		case <-purge:
			r.Purge(ctx)
		}
	}
}

// RecordOnce reads the source and inserts one reading.
func (r *Recorder) RecordOnce(ctx context.Context) (*reading.Reading, error) {
	meta, err := r.deviceMeta()
	if err != nil {
		return nil, err
	}

	value, err := r.source.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensor: %w", err)
	}

	var owner *string
	userID, loggedIn := r.config.UserID()
	if loggedIn {
		owner = &userID
	}

	rec := r.store.Insert(ctx, value, meta, owner)
	if rec == nil {
		return nil, fmt.Errorf("failed to store reading %.1f", value)
	}

	r.mu.Lock()
	r.inserted++
	n := r.inserted
	r.mu.Unlock()

	if r.config.OnRecord != nil {
		r.config.OnRecord(rec)
	}

	if loggedIn && r.syncer != nil && r.config.SyncEvery > 0 && n%r.config.SyncEvery == 0 {
		r.config.Logger.Printf("%d readings recorded, triggering sync", n)
		r.syncer.Trigger(ctx, userID)
	}

	return rec, nil
}

// Purge deletes readings outside the retention window.
func (r *Recorder) Purge(ctx context.Context) int64 {
	if r.config.RetentionHours <= 0 {
		return 0
	}
	return r.store.PurgeOlderThan(ctx, r.config.RetentionHours)
}

func (r *Recorder) deviceMeta() (*reading.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.meta != nil {
		return r.meta, nil
	}
	id, err := r.identity.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to get device identity: %w", err)
	}
	r.meta = id.Meta()
	return r.meta, nil
}
