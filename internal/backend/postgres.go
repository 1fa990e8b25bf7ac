package backend

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yoyo-db/yoyo/internal/yerrors"
)

var postgresDialect = dialect{
	name:          "postgres",
	driverName:    "pgx",
	idOpen:        `"`,
	idClose:       `"`,
	placeholder:   dollarPlaceholder,
	varchar:       func(n int) string { return fmt.Sprintf("varchar(%d)", n) },
	text:          "text",
	timestamp:     "timestamptz",
	integer:       "integer",
	hasSavepoints: true,
}

// PostgresBackend is the pgx/stdlib-backed Backend for PostgreSQL. It
// satisfies NativeLocker using pg_advisory_lock; PostgreSQL always has
// the native primitive available, so BreakLock goes through the same
// sentinel table the fallback protocol uses rather than a session-scoped
// advisory lock, which has no "break" concept from another connection.
//
// Grounded on yoyo/backends/postgresql.py PostgresqlBackend.
type PostgresBackend struct {
	sqlBase
}

func NewPostgresBackend() *PostgresBackend {
	b := &PostgresBackend{}
	b.dialect = postgresDialect
	return b
}

func init() {
	ctor := func() Backend { return NewPostgresBackend() }
	register("postgres", ctor)
	register("postgresql", ctor)
}

func (b *PostgresBackend) Connect(ctx context.Context, rawURL string) error {
	return b.sqlBase.Connect(ctx, rawURL, sql.Open)
}

func (b *PostgresBackend) Lock(ctx context.Context, timeout time.Duration) (func(ctx context.Context) error, error) {
	return b.nativeLock(ctx, "yoyo", timeout)
}

// BreakLock clears the fallback sentinel row used by BreakLock callers;
// a session-scoped pg_advisory_lock has no equivalent concept of being
// broken from another connection, so break-lock always targets the
// sentinel table regardless of how the lock was acquired.
func (b *PostgresBackend) BreakLock(ctx context.Context) error {
	return newFallbackLock(&b.sqlBase).BreakLock(ctx)
}

// nativeLock uses pg_try_advisory_lock in a poll loop rather than the
// blocking pg_advisory_lock, so ctx cancellation and the configured
// timeout are both honored.
func (b *PostgresBackend) nativeLock(ctx context.Context, key string, timeout time.Duration) (func(ctx context.Context) error, error) {
	k := lockKey(key)
	deadline := time.Now().Add(timeoutOrDefault(timeout))

	for {
		var acquired bool
		rows, err := b.query(ctx, "SELECT pg_try_advisory_lock($1)", k)
		if err != nil {
			return nil, err
		}
		if rows.Next() {
			_ = rows.Scan(&acquired)
		}
		rows.Close()
		if acquired {
			return func(ctx context.Context) error {
				return b.Execute(ctx, "SELECT pg_advisory_unlock($1)", k)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, b.lockTimeoutError(ctx, k, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// lockTimeoutError names the pid and, where known, the acquisition time
// of the connection currently holding the advisory lock, per spec.md's
// lock-timeout reporting requirement.
func (b *PostgresBackend) lockTimeoutError(ctx context.Context, key int64, timeout time.Duration) error {
	pid, ctime, err := b.advisoryLockHolder(ctx, key)
	if err != nil {
		return &yerrors.LockError{Timeout: true, Err: fmt.Errorf("timed out waiting for pg_advisory_lock after %s (holder unknown: %w)", timeout, err)}
	}
	msg := fmt.Sprintf("timed out waiting for pg_advisory_lock after %s", timeout)
	if !ctime.IsZero() {
		msg += fmt.Sprintf(" (held since %s)", ctime.UTC().Format(time.RFC3339))
	}
	return &yerrors.LockError{Timeout: true, HolderPID: pid, Err: fmt.Errorf("%s", msg)}
}

// advisoryLockHolder looks up pg_locks for the session holding key,
// joining pg_stat_activity for its query_start as a ctime proxy (advisory
// locks have no ctime column of their own).
func (b *PostgresBackend) advisoryLockHolder(ctx context.Context, key int64) (int, time.Time, error) {
	classid := int32(key >> 32)
	objid := int32(key & 0xffffffff)

	rows, err := b.query(ctx,
		`SELECT l.pid, a.query_start FROM pg_locks l
		 LEFT JOIN pg_stat_activity a ON a.pid = l.pid
		 WHERE l.locktype = 'advisory' AND l.classid = $1 AND l.objid = $2 AND l.objsubid = 1 AND l.granted
		 LIMIT 1`, classid, objid)
	if err != nil {
		return 0, time.Time{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, time.Time{}, fmt.Errorf("lock holder not found in pg_locks")
	}
	var pid int
	var queryStart sql.NullTime
	if err := rows.Scan(&pid, &queryStart); err != nil {
		return 0, time.Time{}, err
	}
	var ctime time.Time
	if queryStart.Valid {
		ctime = queryStart.Time
	}
	return pid, ctime, nil
}

func lockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
