package localstore

import (
	"context"
	"database/sql"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/barolog/barolog/internal/reading"
)

// fakeClock is a settable clock for window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// openTestDB opens a migrated database driven by the given clock.
func openTestDB(t *testing.T, clock *fakeClock) *DB {
	t.Helper()

	db, err := Open(context.Background(), testDBPath(t), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func meta(id string) *reading.Meta {
	return &reading.Meta{DeviceID: id, DeviceName: "Pixel " + id, OSVersion: "Android 14"}
}

func TestOpen_Migrates(t *testing.T) {
	db := openTestDB(t, &fakeClock{now: time.Now()})

	version, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != LatestSchemaVersion() {
		t.Errorf("version = %d, want %d", version, LatestSchemaVersion())
	}
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	for i := 0; i < 2; i++ {
		db, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open() #%d failed: %v", i+1, err)
		}
		if err := db.Migrate(ctx); err != nil {
			t.Errorf("Migrate() #%d failed: %v", i+1, err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("Close() #%d failed: %v", i+1, err)
		}
	}
}

// TestOpen_LegacySchema opens a database created before device and sync
// columns existed and without a schema_version table.
func TestOpen_LegacySchema(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	raw, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("failed to open raw database: %v", err)
	}
	if _, err := raw.Exec(`CREATE TABLE pressures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value REAL NOT NULL,
		timestamp INTEGER NOT NULL,
		deviceId TEXT
	)`); err != nil {
		t.Fatalf("failed to create legacy table: %v", err)
	}
	if _, err := raw.Exec(`INSERT INTO pressures (value, timestamp, deviceId) VALUES (1011.5, 1000, 'legacy')`); err != nil {
		t.Fatalf("failed to insert legacy row: %v", err)
	}
	_ = raw.Close()

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() on legacy database failed: %v", err)
	}
	defer db.Close()

	readings, err := db.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced() failed: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("expected 1 unsynced legacy reading, got %d", len(readings))
	}
	r := readings[0]
	if r.DeviceID != "legacy" || r.Value != 1011.5 || r.UserID != nil || r.Synced || r.IsDuplicate {
		t.Errorf("unexpected legacy reading: %+v", r)
	}
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	db := openTestDB(t, clock)

	user := "u1"
	r, err := db.Insert(ctx, 1013.4, meta("D1"), &user)
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if r.LocalID == 0 {
		t.Error("LocalID not assigned")
	}
	if r.Timestamp != clock.Now().UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", r.Timestamp, clock.Now().UnixMilli())
	}

	got, err := db.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(got))
	}
	if got[0].Synced {
		t.Error("new reading must not be synced")
	}
	if got[0].Owner() != "u1" || got[0].DeviceName != "Pixel D1" {
		t.Errorf("unexpected reading: %+v", got[0])
	}
}

func TestInsert_NilMeta(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(5000)})

	if _, err := db.Insert(ctx, 1000, nil, nil); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	devices, err := db.DistinctDevices(ctx)
	if err != nil {
		t.Fatalf("DistinctDevices() failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected no devices for rows without device id, got %v", devices)
	}
}

func TestInsert_SameMillisecond(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1000)}
	db := openTestDB(t, clock)

	for i := 0; i < 3; i++ {
		if _, err := db.Insert(ctx, float64(1000+i), meta("D1"), nil); err != nil {
			t.Fatalf("Insert() #%d failed: %v", i, err)
		}
	}
	// Another device keeps its own sequence.
	if _, err := db.Insert(ctx, 999, meta("D2"), nil); err != nil {
		t.Fatalf("Insert() D2 failed: %v", err)
	}

	got, err := db.Query(ctx, Filter{DeviceIDs: []string{"D1"}})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	want := []int64{1000, 1001, 1002}
	for i, r := range got {
		if r.Timestamp != want[i] {
			t.Errorf("reading %d timestamp = %d, want %d", i, r.Timestamp, want[i])
		}
	}

	d2, _ := db.Query(ctx, Filter{DeviceIDs: []string{"D2"}})
	if len(d2) != 1 || d2[0].Timestamp != 1000 {
		t.Errorf("unexpected D2 readings: %+v", d2)
	}
}

func TestQuery_Filter(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	db := openTestDB(t, clock)

	base := time.UnixMilli(100 * 3600000)
	inserts := []struct {
		at     time.Time
		device string
	}{
		{base.Add(-3 * time.Hour), "D1"},
		{base.Add(-30 * time.Minute), "D2"},
		{base.Add(-20 * time.Minute), "D1"},
		{base.Add(-10 * time.Minute), "D1"},
		{base.Add(-2 * time.Hour), "D2"},
	}
	for _, in := range inserts {
		clock.Set(in.at)
		if _, err := db.Insert(ctx, 1013, meta(in.device), nil); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}
	clock.Set(base)

	got, err := db.Query(ctx, Filter{SinceHours: 1, DeviceIDs: []string{"D1"}})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got))
	}

	cutoff := base.UnixMilli() - 3600000
	var prev int64
	for _, r := range got {
		if r.Timestamp <= cutoff {
			t.Errorf("reading %d outside window", r.Timestamp)
		}
		if r.DeviceID != "D1" {
			t.Errorf("reading from %s passed D1 filter", r.DeviceID)
		}
		if r.Timestamp < prev {
			t.Errorf("readings not ascending: %d after %d", r.Timestamp, prev)
		}
		prev = r.Timestamp
	}

	all, err := db.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query(all) failed: %v", err)
	}
	if len(all) != len(inserts) {
		t.Errorf("all-time query returned %d readings, want %d", len(all), len(inserts))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp < all[i-1].Timestamp {
			t.Errorf("all-time query not ascending at %d", i)
		}
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	db := openTestDB(t, clock)

	empty, err := db.Stats(ctx, Filter{SinceHours: 24})
	if err != nil {
		t.Fatalf("Stats() on empty store failed: %v", err)
	}
	if empty != (reading.Stats{}) {
		t.Errorf("empty stats = %+v, want zero", empty)
	}

	for _, v := range []float64{1010, 1015, 1020} {
		if _, err := db.Insert(ctx, v, meta("D1"), nil); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	stats, err := db.Stats(ctx, Filter{SinceHours: 24})
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	want := reading.Stats{Min: 1010, Max: 1020, Avg: 1015, Count: 3}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}

func TestMarkSynced_ExactIDs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(1000)})

	var ids []int64
	for i := 0; i < 3; i++ {
		r, err := db.Insert(ctx, 1013, meta("D1"), nil)
		if err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
		ids = append(ids, r.LocalID)
	}

	if err := db.MarkSynced(ctx, nil); err != nil {
		t.Fatalf("MarkSynced(nil) failed: %v", err)
	}
	if err := db.MarkSynced(ctx, ids[:2]); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	unsynced, err := db.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced() failed: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].LocalID != ids[2] {
		t.Errorf("expected only id %d unsynced, got %+v", ids[2], unsynced)
	}
}

func TestMarkSynced_ManyIDs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(1000)})

	var ids []int64
	for i := 0; i < maxVars+25; i++ {
		r, err := db.Insert(ctx, 1013, meta("D1"), nil)
		if err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
		ids = append(ids, r.LocalID)
	}

	if err := db.MarkSynced(ctx, ids); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	unsynced, err := db.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced() failed: %v", err)
	}
	if len(unsynced) != 0 {
		t.Errorf("expected no unsynced readings, got %d", len(unsynced))
	}
}

func TestMergeFromCloud_Overwrite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(1000)})

	if _, err := db.Insert(ctx, 5, meta("D1"), nil); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	remote := &reading.Reading{Value: 7, Timestamp: 1000, DeviceID: "D1", DeviceName: "Renamed", OSVersion: "Android 15"}
	outcome, err := db.MergeFromCloud(ctx, remote)
	if err != nil {
		t.Fatalf("MergeFromCloud() failed: %v", err)
	}
	if outcome != MergeUpdated {
		t.Errorf("outcome = %v, want MergeUpdated", outcome)
	}

	got, _ := db.Query(ctx, Filter{})
	if len(got) != 1 {
		t.Fatalf("expected 1 reading after merge, got %d", len(got))
	}
	r := got[0]
	if r.Value != 7 || !r.Synced || !r.IsDuplicate || r.DeviceName != "Renamed" || r.OSVersion != "Android 15" {
		t.Errorf("unexpected merged reading: %+v", r)
	}
}

func TestMergeFromCloud_Insert(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(1000)})

	user := "u1"
	remote := &reading.Reading{Value: 1009, Timestamp: 2000, DeviceID: "D2", UserID: &user}
	outcome, err := db.MergeFromCloud(ctx, remote)
	if err != nil {
		t.Fatalf("MergeFromCloud() failed: %v", err)
	}
	if outcome != MergeInserted {
		t.Errorf("outcome = %v, want MergeInserted", outcome)
	}

	got, _ := db.Query(ctx, Filter{})
	if len(got) != 1 || !got[0].Synced || got[0].IsDuplicate || got[0].Owner() != "u1" {
		t.Errorf("unexpected inserted reading: %+v", got)
	}
}

func TestMergeFromCloud_EmptyDeviceMatchesNull(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(3000)})

	if _, err := db.Insert(ctx, 1000, nil, nil); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, err := db.MergeFromCloud(ctx, &reading.Reading{Value: 1001, Timestamp: 3000}); err != nil {
		t.Fatalf("MergeFromCloud() failed: %v", err)
	}

	count, _ := db.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 reading, got %d", count)
	}
}

func TestMergeBatch_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(1000)})

	remote := []*reading.Reading{
		{Value: 1010, Timestamp: 100, DeviceID: "A"},
		{Value: 1020, Timestamp: 200, DeviceID: "B"},
	}

	first, err := db.MergeBatch(ctx, remote)
	if err != nil {
		t.Fatalf("MergeBatch() failed: %v", err)
	}
	if first.Inserted != 2 || first.Updated != 0 {
		t.Errorf("first merge = %+v, want 2 inserted", first)
	}

	second, err := db.MergeBatch(ctx, remote)
	if err != nil {
		t.Fatalf("second MergeBatch() failed: %v", err)
	}
	if second.Inserted != 0 || second.Updated != 2 {
		t.Errorf("second merge = %+v, want 2 updated", second)
	}

	count, _ := db.Count(ctx)
	if count != 2 {
		t.Errorf("expected 2 readings after replay, got %d", count)
	}
}

func TestDistinctDevices(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(1000)})

	for _, id := range []string{"B", "A", "B"} {
		if _, err := db.Insert(ctx, 1013, meta(id), nil); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	devices, err := db.DistinctDevices(ctx)
	if err != nil {
		t.Fatalf("DistinctDevices() failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].ID != "A" || devices[1].ID != "B" {
		t.Errorf("devices not ordered by name: %+v", devices)
	}
}

func TestClearAndPurge(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	db := openTestDB(t, clock)

	base := time.UnixMilli(100 * 3600000)
	for _, age := range []time.Duration{30 * time.Hour, 25 * time.Hour, time.Hour} {
		clock.Set(base.Add(-age))
		if _, err := db.Insert(ctx, 1013, meta("D1"), nil); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}
	clock.Set(base)

	if n, err := db.PurgeOlderThan(ctx, 0); err != nil || n != 0 {
		t.Errorf("PurgeOlderThan(0) = %d, %v; want 0, nil", n, err)
	}

	n, err := db.PurgeOlderThan(ctx, 24)
	if err != nil {
		t.Fatalf("PurgeOlderThan() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d readings, want 2", n)
	}

	if err := db.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() failed: %v", err)
	}
	if count, _ := db.Count(ctx); count != 0 {
		t.Errorf("expected empty store after ClearAll, got %d", count)
	}
}

// A reading exactly at the window edge is outside Query's window, so purge
// must remove it.
func TestPurge_BoundaryMatchesQuery(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	db := openTestDB(t, clock)

	base := time.UnixMilli(100 * 3600000)
	for _, age := range []time.Duration{24 * time.Hour, time.Hour} {
		clock.Set(base.Add(-age))
		if _, err := db.Insert(ctx, 1013, meta("D1"), nil); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}
	clock.Set(base)

	visible, err := db.Query(ctx, Filter{SinceHours: 24})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected 1 reading in window, got %d", len(visible))
	}

	n, err := db.PurgeOlderThan(ctx, 24)
	if err != nil {
		t.Fatalf("PurgeOlderThan() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d readings, want 1", n)
	}
	if count, _ := db.Count(ctx); count != len(visible) {
		t.Errorf("expected %d readings left, got %d", len(visible), count)
	}
}

func TestStore_SwallowsErrors(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, &fakeClock{now: time.UnixMilli(1000)})
	store := NewStore(db, log.New(io.Discard, "", 0))

	if _, err := db.RawDB().Exec("DROP TABLE pressures"); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}

	if r := store.Insert(ctx, 1013, meta("D1"), nil); r != nil {
		t.Errorf("Insert() = %+v, want nil", r)
	}
	if got := store.Query(ctx, 0, nil); len(got) != 0 {
		t.Errorf("Query() = %v, want empty", got)
	}
	if got := store.Stats(ctx, 24, nil); got != (reading.Stats{}) {
		t.Errorf("Stats() = %+v, want zero", got)
	}
	if got := store.Unsynced(ctx); len(got) != 0 {
		t.Errorf("Unsynced() = %v, want empty", got)
	}
	store.MarkSynced(ctx, []int64{1})
	store.ClearAll(ctx)
}
