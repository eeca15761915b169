// Package cloud provides the per-user remote replica that all of a user's
// devices reconcile against.
//
// Layout (independent of backend):
//
//	users/{userId}                             → UserDoc {lastSync, userId, email}
//	users/{userId}/readings/{timestamp}_{dev}  → Document
//
// Documents are keyed by the reading's natural key, so writing the same
// reading twice overwrites one document instead of creating two.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/barolog/barolog/internal/reading"
)

// MaxBatchSize is the largest number of documents one CommitBatch call may
// carry.
const MaxBatchSize = 500

// Common errors returned by replicas.
//
// NotFound and PermissionDenied are expected for a user that has never
// synced; callers check them with errors.Is. Any other error is treated as
// a transient transport failure.
var (
	// ErrNotFound is returned when a user or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the backend rejects access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d documents", MaxBatchSize)
)

// UserDoc is the user-level bookkeeping document.
type UserDoc struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email"`
	LastSync time.Time `json:"lastSync"`
}

// Document is the remote counterpart of a reading.
//
// Value and Timestamp are pointers so a document missing either field can
// be told apart from a zero reading.
type Document struct {
	ID          string    `json:"-"`
	Value       *float64  `json:"value,omitempty"`
	Timestamp   *int64    `json:"timestamp,omitempty"`
	DeviceID    string    `json:"deviceId"`
	DeviceName  string    `json:"deviceName"`
	OSVersion   string    `json:"osVersion"`
	UserID      string    `json:"userId"`
	IsDuplicate bool      `json:"isDuplicate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FromReading builds the upload document for a local reading owned by
// userID. IsDuplicate is always false on upload.
func FromReading(r *reading.Reading, userID string) Document {
	value := r.Value
	ts := r.Timestamp
	return Document{
		ID:         r.Key().DocID(),
		Value:      &value,
		Timestamp:  &ts,
		DeviceID:   r.DeviceID,
		DeviceName: r.DeviceName,
		OSVersion:  r.OSVersion,
		UserID:     userID,
	}
}

// Complete reports whether the document carries both value and timestamp.
func (d *Document) Complete() bool {
	return d.Value != nil && d.Timestamp != nil
}

// ToReading converts a complete document into a reading owned by
// fallbackUser when the document has no owner of its own.
func (d *Document) ToReading(fallbackUser string) (*reading.Reading, error) {
	if !d.Complete() {
		return nil, fmt.Errorf("document %s is missing value or timestamp", d.ID)
	}

	owner := d.UserID
	if owner == "" {
		owner = fallbackUser
	}

	return &reading.Reading{
		Value:       *d.Value,
		Timestamp:   *d.Timestamp,
		DeviceID:    d.DeviceID,
		DeviceName:  d.DeviceName,
		OSVersion:   d.OSVersion,
		UserID:      &owner,
		IsDuplicate: d.IsDuplicate,
	}, nil
}

// Replica is the remote per-user store.
type Replica interface {
	// GetUser returns the user document or ErrNotFound.
	GetUser(ctx context.Context, userID string) (*UserDoc, error)

	// PutUser creates or merges the user document.
	PutUser(ctx context.Context, doc UserDoc) error

	// CommitBatch writes up to MaxBatchSize documents under the user.
	// Existing documents with the same ID are overwritten but keep their
	// CreatedAt; UpdatedAt is assigned by the replica.
	CommitBatch(ctx context.Context, userID string, docs []Document) error

	// ListReadings returns every document under the user.
	ListReadings(ctx context.Context, userID string) ([]Document, error)

	// Close releases backend resources.
	Close() error
}

// IsExpected reports whether err is one of the "brand-new user" conditions
// that sync treats as success.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied)
}
