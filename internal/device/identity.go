// Package device derives this machine's identity and tracks the set of
// devices that have contributed readings.
package device

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/barolog/barolog/internal/reading"
)

// Identity describes the device readings are recorded on.
type Identity struct {
	ID        string `toml:"device_id"`
	Name      string `toml:"device_name"`
	OSVersion string `toml:"os_version"`
}

// Meta returns the identity as insert metadata.
func (i Identity) Meta() *reading.Meta {
	return &reading.Meta{DeviceID: i.ID, DeviceName: i.Name, OSVersion: i.OSVersion}
}

// IdentityProvider yields a device identity that is stable across restarts.
type IdentityProvider interface {
	Get() (Identity, error)
}

// StaticIdentity is an IdentityProvider returning a fixed identity.
type StaticIdentity Identity

// Get implements IdentityProvider.
func (s StaticIdentity) Get() (Identity, error) {
	return Identity(s), nil
}

// FileIdentity generates an identity on first use and keeps it in a TOML
// file. A name override replaces the stored name without changing the id.
type FileIdentity struct {
	path string
	name string

	mu     sync.Mutex
	cached *Identity
}

// NewFileIdentity returns a provider persisting to path. name overrides the
// hostname-derived device name when non-empty.
func NewFileIdentity(path, name string) *FileIdentity {
	return &FileIdentity{path: path, name: name}
}

// Get implements IdentityProvider.
func (f *FileIdentity) Get() (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil {
		return *f.cached, nil
	}

	id, err := f.load()
	if errors.Is(err, os.ErrNotExist) {
		id = generate()
		err = f.save(id)
	}
	if err != nil {
		return Identity{}, err
	}

	if f.name != "" && f.name != id.Name {
		id.Name = f.name
		if err := f.save(id); err != nil {
			return Identity{}, err
		}
	}

	f.cached = &id
	return id, nil
}

func (f *FileIdentity) load() (Identity, error) {
	var id Identity
	data, err := os.ReadFile(f.path)
	if err != nil {
		return id, err
	}
	if _, err := toml.Decode(string(data), &id); err != nil {
		return id, fmt.Errorf("failed to parse device identity %s: %w", f.path, err)
	}
	if id.ID == "" {
		return id, fmt.Errorf("device identity %s has no device_id", f.path)
	}
	return id, nil
}

func (f *FileIdentity) save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(id); err != nil {
		return fmt.Errorf("failed to encode device identity: %w", err)
	}
	if err := os.WriteFile(f.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write device identity: %w", err)
	}
	return nil
}

func generate() Identity {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "unknown"
	}
	return Identity{
		ID:        uuid.NewString(),
		Name:      name,
		OSVersion: runtime.GOOS + "/" + runtime.GOARCH,
	}
}
