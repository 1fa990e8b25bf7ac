// Package backend encapsulates per-DBMS variance behind one interface:
// connection, transaction/savepoint control, lock acquisition, bookkeeping
// DDL/DML, and statement dispatch. Concrete backends for PostgreSQL, MySQL
// and SQLite live in postgres.go, mysql.go and sqlite.go; the protocol
// shared by all three (and by any backend lacking native advisory locks)
// lives in lock.go.
//
// Grounded on yoyo/backends/base.py DatabaseBackend.
package backend

import (
	"context"
	"time"

	"github.com/yoyo-db/yoyo/internal/graph"
)

// AppliedRecord is one row of the _yoyo_migration bookkeeping table.
type AppliedRecord struct {
	MigrationID string
	Hash        string
	AppliedAt   time.Time
	AppliedBy   string
}

// LogOperation enumerates the append-only _yoyo_log operations.
type LogOperation string

const (
	OpApply        LogOperation = "apply"
	OpRollback     LogOperation = "rollback"
	OpMark         LogOperation = "mark"
	OpUnmark       LogOperation = "unmark"
	OpApplyFail    LogOperation = "apply_failed"
	OpRollbackFail LogOperation = "rollback_failed"
)

// LogRecord is one row of the append-only _yoyo_log table.
type LogRecord struct {
	ID          string
	MigrationID string
	Hash        string
	Operation   LogOperation
	Username    string
	Hostname    string
	Comment     string
	CreatedAt   time.Time
}

// Backend is the capability set §4.4 requires of every concrete DBMS
// driver. A Backend is not safe for concurrent use; the engine holds the
// lock for the duration of a plan and issues one operation at a time.
type Backend interface {
	// Connect opens a connection with autocommit off by default. url is
	// the full connection URL including scheme.
	Connect(ctx context.Context, url string) error
	Close() error

	// RedactedURL returns the connection URL with any password removed,
	// safe to include in error messages and logs.
	RedactedURL() string

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// SupportsSavepoints reports whether Savepoint/SavepointRelease/
	// SavepointRollback are meaningful. When false they are no-ops and
	// step-level ignore_errors degrades to whole-migration rollback.
	SupportsSavepoints() bool
	Savepoint(ctx context.Context, name string) error
	SavepointRelease(ctx context.Context, name string) error
	SavepointRollback(ctx context.Context, name string) error

	// Execute runs a single SQL statement within whatever transaction is
	// currently open, or autocommitted if none is open.
	Execute(ctx context.Context, sql string, args ...any) error

	// Conn exposes the live connection to code-script step callables.
	Conn() graph.Conn

	QuoteIdentifier(name string) string

	// EnsureBookkeeping idempotently creates the four bookkeeping tables
	// and migrates any legacy schema forward using the version table.
	EnsureBookkeeping(ctx context.Context, migrationTable string) error

	AppliedSet(ctx context.Context) (map[string]AppliedRecord, error)
	InsertApplied(ctx context.Context, rec AppliedRecord) error
	DeleteApplied(ctx context.Context, hash string) error
	AppendLog(ctx context.Context, rec LogRecord) error
	RecentLog(ctx context.Context, limit int) ([]LogRecord, error)

	// Lock blocks until it owns the cross-process lock or timeout
	// elapses, returning a release function that must be called exactly
	// once. See lock.go for the shared fallback implementation and
	// NativeLocker for backends that can do better.
	Lock(ctx context.Context, timeout time.Duration) (release func(ctx context.Context) error, err error)
	BreakLock(ctx context.Context) error
}

// NativeLocker is implemented by backends with a true advisory-lock
// primitive (PostgreSQL, MySQL). Backends without one fall back to the
// insert-sentinel protocol in lock.go.
type NativeLocker interface {
	nativeLock(ctx context.Context, key string, timeout time.Duration) (release func(ctx context.Context) error, err error)
}
