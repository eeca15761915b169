package sync

import (
	"errors"

	"github.com/barolog/barolog/internal/cloud"
)

// Common errors returned by sync operations.
var (
	// ErrUnauthorized is returned when sync is requested for a user that is
	// not the current authenticated principal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorage wraps local store failures.
	ErrStorage = errors.New("local storage failure")
)

// ErrorKind is the classification of a sync phase error.
type ErrorKind int

const (
	// KindNone means no error.
	KindNone ErrorKind = iota
	// KindStorage is a local store failure. Logged and absorbed.
	KindStorage
	// KindUnauthorized is surfaced to the caller.
	KindUnauthorized
	// KindExpected covers NotFound and PermissionDenied for a new user.
	// Logged and absorbed.
	KindExpected
	// KindTransient is any other replica or transport failure. Surfaced.
	KindTransient
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindStorage:
		return "storage"
	case KindUnauthorized:
		return "unauthorized"
	case KindExpected:
		return "expected"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Surfaced reports whether errors of this kind propagate out of Sync.
func (k ErrorKind) Surfaced() bool {
	return k == KindUnauthorized || k == KindTransient
}

// Classify maps an error from Upload or Download to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case cloud.IsExpected(err):
		return KindExpected
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindTransient
	}
}
