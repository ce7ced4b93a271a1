// Package sqlite is the persistent store behind cashd: principals and their
// balances, the transfer idempotency ledger, the wager log and the token
// ledger. It is the only concurrency primitive the engines use: every
// multi-step mutation runs inside DB.Atomic as one BEGIN IMMEDIATE
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cashd-network/cashd/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "cashd.db"

// DefaultBusyTimeout is how long a writer waits for the write lock before
// SQLITE_BUSY surfaces as domain.ErrTransient.
const DefaultBusyTimeout = 5 * time.Second

// DB wraps the process-wide *sql.DB. Open it once at startup, Close it at
// shutdown, and share it across every request handler.
type DB struct {
	db *sql.DB
}

// Options tunes the connection. Zero values fall back to defaults.
type Options struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// Open opens (or creates) the database in dir and applies all migrations.
func Open(dir string) (*DB, error) {
	return OpenWithOptions(dir, Options{})
}

// OpenWithOptions is Open with explicit connection tuning.
func OpenWithOptions(dir string, opts Options) (*DB, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}

	// _txlock=immediate makes every BeginTx a BEGIN IMMEDIATE: the write
	// lock is taken before the first read, so a balance check and the debit
	// that follows can never interleave with another writer.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		filepath.Join(filepath.Clean(dir), FileName),
		opts.BusyTimeout.Milliseconds(),
	)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db := &DB{db: sqlDB}
	if err := db.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	return db.db.Close()
}

func (db *DB) migrate() error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range Migrations() {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return tx.Commit()
}

// ─── Atomic Unit ────────────────────────────────────────────────────────────

// Tx is a handle on one open atomic unit. It is only valid inside the
// callback passed to Atomic.
type Tx struct {
	tx *sql.Tx
}

// Atomic runs fn inside one write transaction. A nil return commits; an
// error or a panic rolls back every mutation fn made. Once the unit starts
// it is not cancellable: the caller's cancellation is detached so a dropped
// client cannot abort it half way.
func (db *DB) Atomic(ctx context.Context, fn func(tx *Tx) error) (err error) {
	ctx = context.WithoutCancel(ctx)

	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside an atomic unit.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ─── Error Classification ───────────────────────────────────────────────────

// storeErr maps driver errors onto the domain taxonomy: lock contention
// becomes ErrTransient, a unique violation becomes ErrConflict, anything
// else is wrapped with the operation name.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isTransient(err):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransient, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isTransient(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isCheckViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_CHECK {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "check constraint failed")
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return s[:i]
	}
	return s
}
