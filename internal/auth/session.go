package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Session is the on-disk login record.
type Session struct {
	User
	LoggedInAt time.Time `toml:"logged_in_at"`
}

// SessionFile is a Context backed by a TOML file. Every CurrentUser call
// reads the file, so a login from another process is seen immediately.
type SessionFile struct {
	path string
	now  func() time.Time
}

// NewSessionFile returns a session stored at path. The file need not exist.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path, now: time.Now}
}

// Path returns the session file location.
func (f *SessionFile) Path() string {
	return f.path
}

// Load reads the session. It returns ErrNoSession when the file is absent
// or carries no user id.
func (f *SessionFile) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", f.path, err)
	}
	if s.ID == "" {
		return nil, ErrNoSession
	}
	return &s, nil
}

// CurrentUser implements Context. An unreadable session counts as logged
// out.
func (f *SessionFile) CurrentUser() (User, bool) {
	s, err := f.Load()
	if err != nil {
		return User{}, false
	}
	return s.User, true
}

// Login writes a session for user, replacing any existing one.
func (f *SessionFile) Login(user User) error {
	if user.ID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(Session{User: user, LoggedInAt: f.now().UTC()}); err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	// Write then rename so watchers never see a half-written file.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to install session: %w", err)
	}
	return nil
}

// Logout removes the session file. Logging out twice is not an error.
func (f *SessionFile) Logout() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
