package auth

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LoginFunc is called when a user logs in.
type LoginFunc func(user User)

// WatcherConfig holds configuration for a session Watcher.
type WatcherConfig struct {
	// DebounceInterval batches the burst of events one login produces.
	DebounceInterval time.Duration

	// OnLogin fires when the session changes to a user different from the
	// previous one (including from logged out).
	OnLogin LoginFunc

	// OnLogout fires when the session disappears.
	OnLogout func()

	// Logger for watcher activity
	Logger *log.Logger
}

// Watcher observes a session file and reports login transitions.
type Watcher struct {
	session *SessionFile
	config  WatcherConfig
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	current string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for session. Call Start to begin watching.
func NewWatcher(session *SessionFile, config WatcherConfig) (*Watcher, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		session: session,
		config:  config,
		watcher: fw,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start records the current principal without firing callbacks and begins
// watching the session directory.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.session.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	if user, ok := w.session.CurrentUser(); ok {
		w.current = user.ID
	}

	// The directory is watched because Login replaces the file by rename.
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch session directory: %w", err)
	}

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.session.Path()) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.DebounceInterval)
			} else {
				timer.Reset(w.config.DebounceInterval)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.check()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// check compares the session against the last seen principal.
func (w *Watcher) check() {
	user, ok := w.session.CurrentUser()

	w.mu.Lock()
	prev := w.current
	if ok {
		w.current = user.ID
	} else {
		w.current = ""
	}
	w.mu.Unlock()

	switch {
	case ok && user.ID != prev:
		w.config.Logger.Printf("Login detected: %s", user.ID)
		if w.config.OnLogin != nil {
			w.config.OnLogin(user)
		}
	case !ok && prev != "":
		w.config.Logger.Printf("Logout detected: %s", prev)
		if w.config.OnLogout != nil {
			w.config.OnLogout()
		}
	}
}
