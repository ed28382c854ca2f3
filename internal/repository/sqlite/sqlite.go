// Package sqlite implements repository.LedgerRepository on an embedded SQLite
// database (modernc.org/sqlite, pure Go, no cgo).
//
// ONE CONNECTION, ON PURPOSE:
// database/sql normally keeps a pool of connections and hands a different one
// to each goroutine. Here the pool is capped at one (SetMaxOpenConns(1)):
//
//   - Every transaction runs alone. Register reads "who owns this handle?"
//     and then writes; AdjustReward reads a counter and then writes. With one
//     connection nothing can slip in between the read and the write, so two
//     users racing for "shroud" get exactly one winner.
//   - ":memory:" databases are per connection. A second connection would see
//     an empty database with no tables.
//
// The cost is that store calls queue behind each other. For a chat bot that
// is a handful of writes a minute, which SQLite handles without noticing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/ledgerbot/internal/repository"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

var _ repository.LedgerRepository = (*DB)(nil)

// New opens the database at dbPath. It does not create tables; call
// EnsureSchema for that.
//
// dbPath examples:
//   - "data/ledger.db"  → file-based database
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// EnsureSchema runs all migrations. Every step checks for existence first, so
// running it against an up-to-date database is a no-op.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_records (
			chat_user_id INTEGER PRIMARY KEY,
			handle       TEXT NOT NULL,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: creating user_records table: %w", err)
	}

	// Reward columns are added one by one so a new kind migrates an old table.
	for _, col := range repository.RewardColumns() {
		def := fmt.Sprintf("INTEGER NOT NULL DEFAULT 0 CHECK (%s >= 0)", col)
		if err := db.addColumnIfNotExists(ctx, repository.Table, col, def); err != nil {
			return fmt.Errorf("sqlite: adding %s: %w", col, err)
		}
	}
	for _, col := range repository.LogColumns {
		if err := db.addColumnIfNotExists(ctx, repository.Table, col, "TEXT"); err != nil {
			return fmt.Errorf("sqlite: adding %s: %w", col, err)
		}
	}

	// Rows written before handles were matched case-insensitively may hold
	// mixed case. Two of them that collide once lower-cased make the index
	// step fail, which is reported rather than silently merged.
	_, err = db.conn.ExecContext(ctx, `
		UPDATE user_records SET handle = lower(trim(handle)) WHERE handle <> lower(trim(handle));
	`)
	if err != nil {
		return fmt.Errorf("sqlite: normalizing handles: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_records_handle ON user_records(handle);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: creating handle index: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent; safe to run repeatedly.
func (db *DB) addColumnIfNotExists(ctx context.Context, table, column, definition string) error {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.ExecContext(ctx, fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err is a UNIQUE/PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

// selectColumns is the column list read by GetRewards.
func selectColumns() string {
	cols := append([]string{"handle"}, repository.RewardColumns()...)
	cols = append(cols, repository.LogColumns[:]...)
	return strings.Join(cols, ", ")
}
