package cloud

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process replica. Several devices in one process (tests,
// the `memory` backend) can share it.
type Memory struct {
	mu       sync.Mutex
	users    map[string]UserDoc
	readings map[string]map[string]Document
	now      func() time.Time

	failCommits []error
	commits     int
	writes      int
}

// NewMemory creates an empty in-memory replica.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]UserDoc),
		readings: make(map[string]map[string]Document),
		now:      time.Now,
	}
}

// FailNextCommit makes the next CommitBatch calls fail with the given
// errors, one per call, in order.
func (m *Memory) FailNextCommit(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCommits = append(m.failCommits, errs...)
}

// Commits returns how many batches were committed successfully.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Writes returns how many document writes were applied, including
// overwrites of existing documents.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Put stores a raw document, bypassing batching. Tests use it to seed
// malformed documents.
func (m *Memory) Put(userID string, doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readings[userID] == nil {
		m.readings[userID] = make(map[string]Document)
	}
	m.readings[userID][doc.ID] = doc
}

// GetUser implements Replica.GetUser.
func (m *Memory) GetUser(ctx context.Context, userID string) (*UserDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return &doc, nil
}

// PutUser implements Replica.PutUser.
func (m *Memory) PutUser(ctx context.Context, doc UserDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.users[doc.UserID]
	existing.UserID = doc.UserID
	if doc.Email != "" {
		existing.Email = doc.Email
	}
	existing.LastSync = m.now().UTC()
	m.users[doc.UserID] = existing
	return nil
}

// CommitBatch implements Replica.CommitBatch. The batch applies atomically.
func (m *Memory) CommitBatch(ctx context.Context, userID string, docs []Document) error {
	if len(docs) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failCommits) > 0 {
		err := m.failCommits[0]
		m.failCommits = m.failCommits[1:]
		if err != nil {
			return err
		}
	}

	coll := m.readings[userID]
	if coll == nil {
		coll = make(map[string]Document)
		m.readings[userID] = coll
	}

	now := m.now().UTC()
	for _, doc := range docs {
		doc.UpdatedAt = now
		if prev, ok := coll[doc.ID]; ok && !prev.CreatedAt.IsZero() {
			doc.CreatedAt = prev.CreatedAt
		} else {
			doc.CreatedAt = now
		}
		coll[doc.ID] = doc
		m.writes++
	}
	m.commits++
	return nil
}

// ListReadings implements Replica.ListReadings. Documents are returned in
// id order.
func (m *Memory) ListReadings(ctx context.Context, userID string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.readings[userID]
	docs := make([]Document, 0, len(coll))
	for _, doc := range coll {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Close implements Replica.Close.
func (m *Memory) Close() error {
	return nil
}
