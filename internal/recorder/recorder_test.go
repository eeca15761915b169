package recorder

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/barolog/barolog/internal/device"
	"github.com/barolog/barolog/internal/localstore"
	"github.com/barolog/barolog/internal/reading"
	"github.com/barolog/barolog/internal/sensor"
)

type fixedSource struct {
	value float64
	err   error
}

func (f fixedSource) Read(ctx context.Context) (float64, error) {
	return f.value, f.err
}

type recordingTrigger struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingTrigger) Trigger(ctx context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func setupStore(t *testing.T) *localstore.Store {
	t.Helper()

	db, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "barolog.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return localstore.NewStore(db, log.New(io.Discard, "", 0))
}

func testConfig(user string) *Config {
	return &Config{
		Interval:  10 * time.Millisecond,
		SyncEvery: 3,
		UserID: func() (string, bool) {
			return user, user != ""
		},
		Logger: log.New(io.Discard, "", 0),
	}
}

var testIdentity = device.StaticIdentity{ID: "dev-1", Name: "Kitchen", OSVersion: "linux/amd64"}

func TestRecordOnce(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	rec, err := New(store, fixedSource{value: 1013.2}, testIdentity, nil, testConfig("u1"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r, err := rec.RecordOnce(ctx)
	if err != nil {
		t.Fatalf("RecordOnce failed: %v", err)
	}
	if r.Value != 1013.2 || r.DeviceID != "dev-1" || r.DeviceName != "Kitchen" {
		t.Errorf("unexpected reading: %+v", r)
	}
	if r.Owner() != "u1" {
		t.Errorf("expected owner u1, got %q", r.Owner())
	}
	if r.Synced {
		t.Error("new reading must be unsynced")
	}
}

func TestRecordOnce_LoggedOut(t *testing.T) {
	store := setupStore(t)
	trigger := &recordingTrigger{}
	cfg := testConfig("")
	cfg.SyncEvery = 1
	rec, _ := New(store, fixedSource{value: 1000}, testIdentity, trigger, cfg)

	r, err := rec.RecordOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.UserID != nil {
		t.Errorf("expected no owner while logged out, got %q", *r.UserID)
	}
	if trigger.count() != 0 {
		t.Error("logged-out recording must not trigger sync")
	}
}

func TestRecordOnce_TriggersEveryK(t *testing.T) {
	store := setupStore(t)
	trigger := &recordingTrigger{}
	rec, _ := New(store, fixedSource{value: 1000}, testIdentity, trigger, testConfig("u1"))

	for i := 0; i < 7; i++ {
		if _, err := rec.RecordOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if trigger.count() != 2 {
		t.Errorf("expected 2 triggers after 7 inserts with K=3, got %d", trigger.count())
	}
	if rec.Inserted() != 7 {
		t.Errorf("expected 7 inserted, got %d", rec.Inserted())
	}
}

func TestRecordOnce_SourceError(t *testing.T) {
	store := setupStore(t)
	rec, _ := New(store, fixedSource{err: sensor.ErrNoData}, testIdentity, nil, testConfig("u1"))

	if _, err := rec.RecordOnce(context.Background()); !errors.Is(err, sensor.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	if store.Count(context.Background()) != 0 {
		t.Error("nothing should be stored on source error")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := setupStore(t)
	var (
		mu      sync.Mutex
		records int
	)
	cfg := testConfig("u1")
	cfg.OnRecord = func(*reading.Reading) {
		mu.Lock()
		defer mu.Unlock()
		records++
	}
	rec, _ := New(store, fixedSource{value: 1012}, testIdentity, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for rec.Inserted() < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for readings")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if records != rec.Inserted() {
		t.Errorf("expected OnRecord for every insert: %d vs %d", records, rec.Inserted())
	}
	if got := store.Count(context.Background()); got != rec.Inserted() {
		t.Errorf("expected %d stored readings, got %d", rec.Inserted(), got)
	}
}

func TestPurge(t *testing.T) {
	store := setupStore(t)
	cfg := testConfig("u1")
	rec, _ := New(store, fixedSource{value: 1000}, testIdentity, nil, cfg)

	if n := rec.Purge(context.Background()); n != 0 {
		t.Errorf("purge without retention must be a no-op, got %d", n)
	}

	if _, err := rec.RecordOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	cfg.RetentionHours = 24
	if n := rec.Purge(context.Background()); n != 0 {
		t.Errorf("fresh reading must survive a 24h retention, purged %d", n)
	}
	if store.Count(context.Background()) != 1 {
		t.Error("expected reading to remain")
	}
}
