// Package auth provides the authenticated-principal context consumed by
// sync.
//
// Authentication itself is out of scope: a login stores an opaque user id
// (and email) in a session file, and the rest of the program only asks who
// is logged in right now.
package auth

import (
	"errors"
	"sync"
)

// ErrNoSession is returned when no user is logged in.
var ErrNoSession = errors.New("no active session")

// User is the authenticated principal.
type User struct {
	ID    string `toml:"user_id" json:"userId"`
	Email string `toml:"email" json:"email"`
}

// Context reports the current principal.
type Context interface {
	// CurrentUser returns the logged-in user, or false when nobody is.
	CurrentUser() (User, bool)
}

// Static is a Context whose principal is set in-process. Tests and
// embedded callers use it.
type Static struct {
	mu   sync.RWMutex
	user *User
}

// NewStatic returns a Static context logged in as user, or logged out when
// user.ID is empty.
func NewStatic(user User) *Static {
	s := &Static{}
	if user.ID != "" {
		s.user = &user
	}
	return s
}

// CurrentUser implements Context.
func (s *Static) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Login replaces the current principal.
func (s *Static) Login(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
}

// Logout clears the current principal.
func (s *Static) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}
