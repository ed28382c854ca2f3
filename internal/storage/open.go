// Package storage picks the store backend from DATABASE_URL and keeps the
// process serving while that store is unreachable.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/ledgerbot/internal/repository"
	"github.com/sakif/ledgerbot/internal/repository/postgres"
	"github.com/sakif/ledgerbot/internal/repository/sqlite"
)

// Backend names a store implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Resolve maps a DATABASE_URL to a backend and the string its driver expects.
//
//	postgres://..., postgresql://...  -> postgres, unchanged
//	sqlite://data/ledger.db           -> sqlite, "data/ledger.db"
//	file:ledger.db?mode=rwc, :memory: -> sqlite, unchanged
//	data/ledger.db                    -> sqlite, unchanged
func Resolve(dsn string) (Backend, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("storage: empty DATABASE_URL")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return BackendPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("storage: sqlite URL has no path")
		}
		return BackendSQLite, path, nil
	case strings.Contains(dsn, "://"):
		scheme, _, _ := strings.Cut(dsn, "://")
		return "", "", fmt.Errorf("storage: unsupported scheme %q", scheme)
	default:
		return BackendSQLite, dsn, nil
	}
}

// Open connects to the backend named by dsn. It does not touch the schema.
func Open(ctx context.Context, dsn string) (repository.LedgerRepository, error) {
	backend, target, err := Resolve(dsn)
	if err != nil {
		return nil, err
	}

	if backend == BackendPostgres {
		db, err := postgres.New(ctx, target, postgres.DefaultOptions())
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	if err := ensureDir(target); err != nil {
		return nil, err
	}
	db, err := sqlite.New(target)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// ensureDir creates the parent directory of a plain sqlite file path.
func ensureDir(target string) error {
	if target == ":memory:" || strings.HasPrefix(target, "file:") {
		return nil
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return nil
}
