package cloud

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendLibSQL = "libsql"
	BackendS3     = "s3"
)

// libsqlAvailable is set when the binary is built with the libsql tag.
var libsqlAvailable bool

// Config selects and configures a replica backend.
type Config struct {
	Backend string

	// Path is the replica file for the sqlite backend.
	Path string

	// URL is the libSQL/Turso database URL (libsql://..., http://...).
	// AuthToken is appended as authToken when set.
	URL       string
	AuthToken string

	S3 S3Config

	// Memory is the shared replica for the memory backend. A fresh one is
	// created when nil.
	Memory *Memory
}

// Open returns the replica selected by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Replica, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		if cfg.Memory != nil {
			return cfg.Memory, nil
		}
		return NewMemory(), nil

	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite replica requires a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create replica directory: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)", cfg.Path)
		return OpenSQL(ctx, "sqlite3", dsn)

	case BackendLibSQL:
		if !libsqlAvailable {
			return nil, fmt.Errorf("libsql backend not compiled in (build with -tags libsql)")
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("libsql replica requires a URL")
		}
		dsn := cfg.URL
		if cfg.AuthToken != "" {
			dsn += "?authToken=" + cfg.AuthToken
		}
		return OpenSQL(ctx, "libsql", dsn)

	case BackendS3:
		return OpenS3(ctx, cfg.S3)

	default:
		return nil, fmt.Errorf("unknown replica backend %q", cfg.Backend)
	}
}
