package sync

import (
	"context"
	"errors"
	"log"
	"os"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/barolog/barolog/internal/auth"
	"github.com/barolog/barolog/internal/cloud"
)

// State is the engine's position in the Idle/Syncing machine.
type State int32

const (
	// Idle means no cycle is running.
	Idle State = iota
	// Syncing means a cycle is in flight.
	Syncing
)

// String returns a human-readable name for the state.
func (s State) String() string {
	if s == Syncing {
		return "syncing"
	}
	return "idle"
}

// Result describes one sync cycle.
type Result struct {
	CycleID string
	// Skipped is set when the request arrived while another cycle was in
	// flight and was dropped.
	Skipped     bool
	Uploaded    int
	Downloaded  int
	Inserted    int
	Updated     int
	SkippedDocs int
	StartedAt   time.Time
	Duration    time.Duration
	UploadErr   error
	DownloadErr error
}

// Config holds configuration for the engine.
type Config struct {
	// BatchSize is the upload batch size. 0 selects cloud.MaxBatchSize.
	BatchSize int

	// Registry is refreshed after every cycle. Optional.
	Registry Refresher

	// Logger for sync activity
	Logger *log.Logger
}

// Engine runs sync cycles, at most one at a time.
type Engine struct {
	uploader   *Uploader
	downloader *Downloader
	registry   Refresher
	logger     *log.Logger

	state atomic.Int32
	wg    gosync.WaitGroup

	mu        gosync.Mutex
	observers []Observer
}

// NewEngine creates an engine over the local store and the replica.
func NewEngine(store Store, replica cloud.Replica, authCtx auth.Context, config Config) *Engine {
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		uploader:   NewUploader(store, replica, authCtx, config.BatchSize, config.Logger),
		downloader: NewDownloader(store, replica, authCtx, config.Logger),
		registry:   config.Registry,
		logger:     config.Logger,
	}
}

// Subscribe registers an observer called after every completed cycle.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// State returns the current state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Sync runs one cycle for userID: upload, then download regardless of the
// upload outcome, then registry refresh and observer notification.
//
// A call made while a cycle is in flight is dropped and returns a Result
// with Skipped set and a nil error. The returned error joins the upload and
// download errors whose kind is surfaced (Unauthorized, Transient).
func (e *Engine) Sync(ctx context.Context, userID string) (Result, error) {
	if !e.state.CompareAndSwap(int32(Idle), int32(Syncing)) {
		e.logger.Printf("Sync already in progress, request for %s dropped", userID)
		return Result{Skipped: true}, nil
	}
	defer e.state.Store(int32(Idle))

	res := Result{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
	}
	e.logger.Printf("Sync %s started for %s", res.CycleID, userID)

	res.Uploaded, res.UploadErr = e.uploader.Upload(ctx, userID)

	down, err := e.downloader.DownloadDetailed(ctx, userID)
	res.Downloaded = down.Merged()
	res.Inserted = down.Inserted
	res.Updated = down.Updated
	res.SkippedDocs = down.Skipped
	res.DownloadErr = err

	if e.registry != nil {
		e.registry.Refresh(ctx)
	}

	res.Duration = time.Since(res.StartedAt)
	e.notify(res)

	surfaced := errors.Join(
		e.absorb("upload", res.UploadErr),
		e.absorb("download", res.DownloadErr),
	)

	e.logger.Printf("Sync %s finished in %v: uploaded=%d downloaded=%d skipped=%d",
		res.CycleID, res.Duration.Round(time.Millisecond), res.Uploaded, res.Downloaded, res.SkippedDocs)
	return res, surfaced
}

// absorb logs a phase error and returns it only when its kind is surfaced.
func (e *Engine) absorb(phase string, err error) error {
	kind := Classify(err)
	switch kind {
	case KindNone:
		return nil
	case KindExpected:
		e.logger.Printf("%s: nothing to reconcile yet: %v", phase, err)
		return nil
	case KindStorage:
		e.logger.Printf("ERROR: %s: %v", phase, err)
		return nil
	default:
		e.logger.Printf("ERROR: %s (%s): %v", phase, kind, err)
		return err
	}
}

func (e *Engine) notify(res Result) {
	e.mu.Lock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, o := range observers {
		o(res)
	}
}

// Trigger runs a cycle in the background. Errors are logged. Use Wait to
// block until triggered cycles have finished.
func (e *Engine) Trigger(ctx context.Context, userID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.Sync(ctx, userID); err != nil {
			e.logger.Printf("Triggered sync failed: %v", err)
		}
	}()
}

// Wait blocks until every triggered cycle has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}
