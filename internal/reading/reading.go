// Package reading defines the pressure reading record shared by the local
// store, the cloud replica and the sync engine.
package reading

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Reading is one pressure measurement.
//
// LocalID is a surrogate key that is only meaningful inside one device's
// local store. It is never sent to the cloud; cross-store identity is the
// natural key (Timestamp, DeviceID).
type Reading struct {
	LocalID int64 `json:"id,omitempty"`

	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds

	// ===== Device metadata =====
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	OSVersion  string `json:"osVersion"`

	// UserID is nil for rows recorded before a user logged in.
	UserID *string `json:"userId,omitempty"`

	// ===== Sync state =====
	Synced      bool `json:"synced"`
	IsDuplicate bool `json:"isDuplicate"`
}

// Key returns the natural key of the reading.
func (r *Reading) Key() Key {
	return Key{Timestamp: r.Timestamp, DeviceID: r.DeviceID}
}

// Time returns the reading timestamp as a time.Time.
func (r *Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Owner returns the owning user id or "" for legacy rows.
func (r *Reading) Owner() string {
	if r.UserID == nil {
		return ""
	}
	return *r.UserID
}

// Validate checks if the Reading has valid field values.
func (r *Reading) Validate() error {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("value must be a finite number (got %v)", r.Value)
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive (got %d)", r.Timestamp)
	}
	return nil
}

// Key identifies a reading across stores.
type Key struct {
	Timestamp int64
	DeviceID  string
}

// DocID renders the key as the cloud document id "{timestamp}_{deviceId}".
// Rows without a device id map to "{timestamp}_unknown".
func (k Key) DocID() string {
	dev := k.DeviceID
	if dev == "" {
		dev = "unknown"
	}
	return strconv.FormatInt(k.Timestamp, 10) + "_" + dev
}

func (k Key) String() string {
	return k.DocID()
}

// Meta is the optional device metadata attached to an inserted reading.
type Meta struct {
	DeviceID   string
	DeviceName string
	OSVersion  string
}

// Device is a projection over readings: the distinct device tuples present
// in the store. It has no lifecycle of its own.
type Device struct {
	ID        string `json:"deviceId"`
	Name      string `json:"deviceName"`
	OSVersion string `json:"osVersion"`
}

// Stats aggregates readings over a time window.
// An empty window yields the zero value.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Since returns the cutoff in epoch milliseconds for a "last N hours" window
// ending at now. sinceHours <= 0 means all time and returns 0.
func Since(now time.Time, sinceHours int) int64 {
	if sinceHours <= 0 {
		return 0
	}
	return now.UnixMilli() - int64(sinceHours)*int64(time.Hour/time.Millisecond)
}
