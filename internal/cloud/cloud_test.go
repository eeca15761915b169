package cloud

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/barolog/barolog/internal/reading"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }

func testDoc(ts int64, dev string, value float64) Document {
	return Document{
		ID:        reading.Key{Timestamp: ts, DeviceID: dev}.DocID(),
		Value:     ptrF(value),
		Timestamp: ptrI(ts),
		DeviceID:  dev,
		UserID:    "u1",
	}
}

// replicaContract runs the behaviour every backend must share.
func replicaContract(t *testing.T, r Replica) {
	ctx := context.Background()

	if _, err := r.GetUser(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser on new user: expected ErrNotFound, got %v", err)
	}

	if err := r.PutUser(ctx, UserDoc{UserID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}
	if err := r.PutUser(ctx, UserDoc{UserID: "u1"}); err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}
	user, err := r.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Email != "a@example.com" {
		t.Errorf("expected email to survive merge, got %q", user.Email)
	}

	if err := r.CommitBatch(ctx, "u1", []Document{
		testDoc(1000, "A", 1010),
		testDoc(2000, "B", 1011),
	}); err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}

	docs, err := r.ListReadings(ctx, "u1")
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	created := docs[0].CreatedAt

	// Same key again: one document, value replaced, createdAt kept.
	if err := r.CommitBatch(ctx, "u1", []Document{testDoc(1000, "A", 999)}); err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}
	docs, err = r.ListReadings(ctx, "u1")
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected overwrite to keep 2 documents, got %d", len(docs))
	}
	if docs[0].ID != "1000_A" || *docs[0].Value != 999 {
		t.Errorf("expected 1000_A overwritten to 999, got %s=%v", docs[0].ID, *docs[0].Value)
	}
	if !docs[0].CreatedAt.Equal(created) {
		t.Errorf("createdAt changed on overwrite: %v -> %v", created, docs[0].CreatedAt)
	}

	other, err := r.ListReadings(ctx, "u2")
	if err != nil {
		t.Fatalf("ListReadings for other user failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no documents for u2, got %d", len(other))
	}

	big := make([]Document, MaxBatchSize+1)
	if err := r.CommitBatch(ctx, "u1", big); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestMemory_Contract(t *testing.T) {
	m := NewMemory()
	clock := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	replicaContract(t, m)
}

func TestSQL_Contract(t *testing.T) {
	ctx := context.Background()
	r, err := Open(ctx, Config{
		Backend: BackendSQLite,
		Path:    filepath.Join(t.TempDir(), "replica.db"),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	clock := time.Unix(1_700_000_000, 0)
	r.(*SQL).now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	replicaContract(t, r)
}

func TestSQL_MissingFields(t *testing.T) {
	ctx := context.Background()
	r, err := Open(ctx, Config{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "replica.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	doc := Document{ID: "broken", DeviceID: "A"}
	if err := r.CommitBatch(ctx, "u1", []Document{doc}); err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}

	docs, err := r.ListReadings(ctx, "u1")
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Complete() {
		t.Error("expected document without value/timestamp to be incomplete")
	}
}

func TestMemory_FailNextCommit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := fmt.Errorf("network unreachable")
	m.FailNextCommit(boom)

	if err := m.CommitBatch(ctx, "u1", []Document{testDoc(1, "A", 1)}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if docs, _ := m.ListReadings(ctx, "u1"); len(docs) != 0 {
		t.Errorf("failed batch must not write, got %d docs", len(docs))
	}

	if err := m.CommitBatch(ctx, "u1", []Document{testDoc(1, "A", 1)}); err != nil {
		t.Fatalf("second commit should succeed: %v", err)
	}
	if m.Commits() != 1 {
		t.Errorf("expected 1 successful commit, got %d", m.Commits())
	}
}

func TestDocument_ToReading(t *testing.T) {
	doc := Document{ID: "5_A", Value: ptrF(1000.5), Timestamp: ptrI(5), DeviceID: "A"}
	r, err := doc.ToReading("caller")
	if err != nil {
		t.Fatalf("ToReading failed: %v", err)
	}
	if r.Owner() != "caller" {
		t.Errorf("expected owner to default to caller, got %q", r.Owner())
	}

	doc.UserID = "owner"
	r, _ = doc.ToReading("caller")
	if r.Owner() != "owner" {
		t.Errorf("expected document owner to win, got %q", r.Owner())
	}

	if _, err := (&Document{ID: "x", Timestamp: ptrI(5)}).ToReading("caller"); err == nil {
		t.Error("expected error for missing value")
	}
}

func TestFromReading(t *testing.T) {
	r := &reading.Reading{LocalID: 7, Value: 1012.3, Timestamp: 42, DeviceID: "dev", IsDuplicate: true}
	doc := FromReading(r, "u1")
	if doc.ID != "42_dev" {
		t.Errorf("expected id 42_dev, got %s", doc.ID)
	}
	if doc.IsDuplicate {
		t.Error("uploaded documents must not be marked duplicate")
	}
	if doc.UserID != "u1" || *doc.Value != 1012.3 || *doc.Timestamp != 42 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestIsExpected(t *testing.T) {
	if !IsExpected(fmt.Errorf("get: %w", ErrNotFound)) {
		t.Error("wrapped ErrNotFound should be expected")
	}
	if !IsExpected(mapS3Err(fmt.Errorf("%w", ErrPermissionDenied))) {
		t.Error("ErrPermissionDenied should be expected")
	}
	if IsExpected(errors.New("timeout")) {
		t.Error("other errors should not be expected")
	}
}

func TestOpen_Unknown(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
