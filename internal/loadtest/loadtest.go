// Package loadtest simulates a fleet of devices sharing one cloud replica.
//
// Each simulated device has its own local store and sync engine. Devices
// record readings, run sync cycles concurrently, and must converge on the
// same set of readings. Sync cycle latency is collected per cycle.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/barolog/barolog/internal/auth"
	"github.com/barolog/barolog/internal/cloud"
	"github.com/barolog/barolog/internal/localstore"
	"github.com/barolog/barolog/internal/reading"
	"github.com/barolog/barolog/internal/sensor"
	barosync "github.com/barolog/barolog/internal/sync"
)

// Device is one simulated installation.
type Device struct {
	ID     string
	DB     *localstore.DB
	Engine *barosync.Engine
	source *sensor.Simulated
}

// Fleet is a set of devices owned by one user.
type Fleet struct {
	UserID   string
	Devices  []*Device
	Replica  cloud.Replica
	Recorded int
}

// LatencyStats captures sync cycle timings.
type LatencyStats struct {
	Min         time.Duration
	Max         time.Duration
	Mean        time.Duration
	P50         time.Duration // Median
	P95         time.Duration
	P99         time.Duration
	TotalCycles int
	Errors      int
	Durations   []time.Duration
}

// NewFleet opens numDevices local stores under dir, all syncing to replica
// as userID. A nil logger discards sync logs.
func NewFleet(ctx context.Context, dir string, numDevices int, replica cloud.Replica, userID string, logger *log.Logger) (*Fleet, error) {
	if numDevices <= 0 {
		return nil, fmt.Errorf("numDevices must be positive (got %d)", numDevices)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	f := &Fleet{UserID: userID, Replica: replica}
	authCtx := auth.NewStatic(auth.User{ID: userID})

	for i := 0; i < numDevices; i++ {
		id := fmt.Sprintf("sim-%03d", i)
		db, err := localstore.Open(ctx, filepath.Join(dir, id+".db"))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open store for %s: %w", id, err)
		}

		f.Devices = append(f.Devices, &Device{
			ID: id,
			DB: db,
			Engine: barosync.NewEngine(db, replica, authCtx, barosync.Config{
				Logger: logger,
			}),
			source: sensor.NewSimulated(uint64(i + 1)),
		})
	}
	return f, nil
}

// Close closes every device store.
func (f *Fleet) Close() error {
	var firstErr error
	for _, d := range f.Devices {
		d.Engine.Wait()
		if err := d.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Record inserts perDevice readings on every device concurrently.
func (f *Fleet) Record(ctx context.Context, perDevice int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, d := range f.Devices {
		g.Go(func() error {
			meta := &reading.Meta{DeviceID: d.ID, DeviceName: d.ID, OSVersion: "loadtest"}
			for j := 0; j < perDevice; j++ {
				v, err := d.source.Read(ctx)
				if err != nil {
					return err
				}
				if _, err := d.DB.Insert(ctx, v, meta, &f.UserID); err != nil {
					return fmt.Errorf("device %s insert %d failed: %w", d.ID, j, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.Recorded += perDevice * len(f.Devices)
	return nil
}

// SyncAll runs rounds of sync cycles; within a round every device syncs
// concurrently. Two rounds are enough to converge: after the first every
// upload has landed, the second downloads them everywhere.
func (f *Fleet) SyncAll(ctx context.Context, rounds int) (*LatencyStats, error) {
	var (
		mu        sync.Mutex
		durations []time.Duration
		errCount  int
	)

	for round := 0; round < rounds; round++ {
		var wg sync.WaitGroup
		for _, d := range f.Devices {
			wg.Add(1)
			go func(d *Device) {
				defer wg.Done()

				res, err := d.Engine.Sync(ctx, f.UserID)

				mu.Lock()
				defer mu.Unlock()
				if err != nil || res.UploadErr != nil || res.DownloadErr != nil {
					errCount++
					return
				}
				durations = append(durations, res.Duration)
			}(d)
		}
		wg.Wait()
	}

	if len(durations) == 0 {
		return nil, fmt.Errorf("no sync cycle completed")
	}

	stats := computeLatencyStats(durations)
	stats.Errors = errCount
	return stats, nil
}

// Verify checks that every device holds the same readings and that none
// is left unsynced.
func (f *Fleet) Verify(ctx context.Context) error {
	var want []string
	for i, d := range f.Devices {
		all, err := d.DB.Query(ctx, localstore.Filter{})
		if err != nil {
			return fmt.Errorf("device %s query failed: %w", d.ID, err)
		}

		keys := make([]string, 0, len(all))
		for _, r := range all {
			if !r.Synced {
				return fmt.Errorf("device %s has unsynced reading %s", d.ID, r.Key())
			}
			keys = append(keys, r.Key().DocID())
		}
		sort.Strings(keys)

		if len(keys) != f.Recorded {
			return fmt.Errorf("device %s has %d readings, expected %d", d.ID, len(keys), f.Recorded)
		}
		if i == 0 {
			want = keys
			continue
		}
		if strings.Join(keys, ",") != strings.Join(want, ",") {
			return fmt.Errorf("device %s diverges from %s", d.ID, f.Devices[0].ID)
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Mean:        sum / time.Duration(len(sorted)),
		P50:         sorted[len(sorted)*50/100],
		P95:         sorted[len(sorted)*95/100],
		P99:         sorted[len(sorted)*99/100],
		TotalCycles: len(sorted),
		Durations:   sorted,
	}
}

// Fprint writes the statistics in a human-readable block.
func (s *LatencyStats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "Sync Latency:\n")
	fmt.Fprintf(w, "  Total Cycles:  %d\n", s.TotalCycles)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
