// Package postgres implements repository.LedgerRepository on PostgreSQL using
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/sakif/ledgerbot/internal/repository"
)

// SQLSTATE codes a schema step may ignore. Two processes migrating at once
// can both pass an IF NOT EXISTS check and race on the catalog insert, so each
// step tolerates the codes that race produces for it and nothing else.
//
// 23505 is only harmless for CREATE TABLE, where it comes from the pg_type
// catalog. On CREATE UNIQUE INDEX it means the table holds duplicate handles,
// and swallowing it would leave the table without its uniqueness guarantee.
var (
	tableExists = codeSet(
		"42P07", // duplicate_table
		"42710", // duplicate_object
		"23505", // unique_violation on pg_type
	)
	columnExists = codeSet("42701") // duplicate_column
	indexExists  = codeSet("42P07") // duplicate_table, raised for indexes too
	noTolerance  = codeSet()
)

func codeSet(codes ...pq.ErrorCode) map[pq.ErrorCode]bool {
	m := make(map[pq.ErrorCode]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

type schemaStep struct {
	stmt     string
	tolerate map[pq.ErrorCode]bool
}

const uniqueViolation pq.ErrorCode = "23505"

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions suits a single bot process.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

var _ repository.LedgerRepository = (*DB)(nil)

// New opens a pool for dsn and verifies it with a ping.
func New(ctx context.Context, dsn string, opts Options) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty DSN")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// EnsureSchema creates the table, columns and handle index when missing.
// Handles stored before case-insensitive matching are lower-cased first; if
// that turns two users' handles into one, the index step fails and the
// conflict has to be resolved by hand.
func (db *DB) EnsureSchema(ctx context.Context) error {
	steps := []schemaStep{{
		stmt: `CREATE TABLE IF NOT EXISTS user_records (
			chat_user_id BIGINT PRIMARY KEY,
			handle       VARCHAR(200) NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		tolerate: tableExists,
	}}
	for _, col := range repository.RewardColumns() {
		steps = append(steps, schemaStep{
			stmt: fmt.Sprintf(
				`ALTER TABLE user_records ADD COLUMN IF NOT EXISTS %[1]s INTEGER NOT NULL DEFAULT 0 CHECK (%[1]s >= 0)`, col),
			tolerate: columnExists,
		})
	}
	for _, col := range repository.LogColumns {
		steps = append(steps, schemaStep{
			stmt:     fmt.Sprintf(`ALTER TABLE user_records ADD COLUMN IF NOT EXISTS %s TEXT`, col),
			tolerate: columnExists,
		})
	}
	steps = append(steps,
		schemaStep{
			stmt:     `UPDATE user_records SET handle = lower(btrim(handle)) WHERE handle <> lower(btrim(handle))`,
			tolerate: noTolerance,
		},
		schemaStep{
			stmt:     `CREATE UNIQUE INDEX IF NOT EXISTS idx_user_records_handle ON user_records (handle)`,
			tolerate: indexExists,
		},
	)

	for _, step := range steps {
		if _, err := db.conn.ExecContext(ctx, step.stmt); err != nil {
			if tolerated(err, step.tolerate) {
				continue
			}
			return fmt.Errorf("postgres: migrating (%s): %w", firstLine(step.stmt), err)
		}
	}
	return nil
}

func tolerated(err error, codes map[pq.ErrorCode]bool) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return codes[pqErr.Code]
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func selectColumns() string {
	cols := append([]string{"handle"}, repository.RewardColumns()...)
	cols = append(cols, repository.LogColumns[:]...)
	return strings.Join(cols, ", ")
}
