package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Drivers accepted by Open.
const (
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

// Options selects and configures a store backend.
type Options struct {
	Driver string
	// Path is the libSQL database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Driver {
	case "", DriverLibSQL:
		if dir := filepath.Dir(opts.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err = NewLibSQLStore("file:" + opts.Path)
	case DriverPostgres:
		s, err = NewPostgresStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}
