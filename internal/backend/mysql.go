package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/yoyo-db/yoyo/internal/yerrors"
)

var mysqlDialect = dialect{
	name:          "mysql",
	driverName:    "mysql",
	idOpen:        "`",
	idClose:       "`",
	placeholder:   questionPlaceholder,
	varchar:       func(n int) string { return fmt.Sprintf("varchar(%d)", n) },
	text:          "text",
	timestamp:     "datetime",
	integer:       "integer",
	hasSavepoints: true,
}

// MySQLBackend is the go-sql-driver/mysql-backed Backend. It satisfies
// NativeLocker using GET_LOCK/RELEASE_LOCK, which unlike PostgreSQL takes
// a timeout argument directly.
//
// Grounded on yoyo/backends/mysql.py MySQLBackend.
type MySQLBackend struct {
	sqlBase
}

func NewMySQLBackend() *MySQLBackend {
	b := &MySQLBackend{}
	b.dialect = mysqlDialect
	return b
}

func init() {
	register("mysql", func() Backend { return NewMySQLBackend() })
}

func (b *MySQLBackend) Connect(ctx context.Context, rawURL string) error {
	return b.sqlBase.Connect(ctx, rawURL, sql.Open)
}

func (b *MySQLBackend) Lock(ctx context.Context, timeout time.Duration) (func(ctx context.Context) error, error) {
	return b.nativeLock(ctx, "yoyo", timeout)
}

func (b *MySQLBackend) nativeLock(ctx context.Context, key string, timeout time.Duration) (func(ctx context.Context) error, error) {
	seconds := int(timeoutOrDefault(timeout) / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	rows, err := b.query(ctx, "SELECT GET_LOCK(?, ?)", key, seconds)
	if err != nil {
		return nil, err
	}
	var result sql.NullInt64
	if rows.Next() {
		_ = rows.Scan(&result)
	}
	rows.Close()

	if !result.Valid || result.Int64 != 1 {
		return nil, b.lockTimeoutError(ctx, key, timeout)
	}

	return func(ctx context.Context) error {
		return b.Execute(ctx, "SELECT RELEASE_LOCK(?)", key)
	}, nil
}

// lockTimeoutError reports the holder of a named lock that GET_LOCK
// failed to acquire. MySQL named locks track neither an OS pid nor an
// acquisition time the way yoyo_lock or pg_locks do, so HolderPID carries
// the holding connection id (from IS_USED_LOCK) as the best identifier
// available, and the message carries its processlist uptime in lieu of a
// real ctime.
func (b *MySQLBackend) lockTimeoutError(ctx context.Context, key string, timeout time.Duration) error {
	connID, heldFor, err := b.namedLockHolder(ctx, key)
	if err != nil {
		return &yerrors.LockError{Timeout: true, Err: fmt.Errorf("GET_LOCK did not return 1 within %s (holder unknown: %w)", timeout, err)}
	}
	msg := fmt.Sprintf("GET_LOCK did not return 1 within %s", timeout)
	if heldFor > 0 {
		msg += fmt.Sprintf(" (held for at least %s)", heldFor)
	}
	return &yerrors.LockError{Timeout: true, HolderPID: connID, Err: fmt.Errorf("%s", msg)}
}

func (b *MySQLBackend) namedLockHolder(ctx context.Context, key string) (int, time.Duration, error) {
	rows, err := b.query(ctx, "SELECT IS_USED_LOCK(?)", key)
	if err != nil {
		return 0, 0, err
	}
	var connID sql.NullInt64
	if rows.Next() {
		_ = rows.Scan(&connID)
	}
	rows.Close()
	if !connID.Valid {
		return 0, 0, fmt.Errorf("named lock %q is not currently held", key)
	}

	var seconds sql.NullInt64
	procRows, err := b.query(ctx, "SELECT TIME FROM information_schema.processlist WHERE ID = ?", connID.Int64)
	if err == nil {
		if procRows.Next() {
			_ = procRows.Scan(&seconds)
		}
		procRows.Close()
	}

	return int(connID.Int64), time.Duration(seconds.Int64) * time.Second, nil
}

// BreakLock clears the fallback sentinel row; MySQL's named locks are
// session-scoped and released automatically when the holding connection
// dies, so the only durable "stuck lock" state is the sentinel row from
// a process that used the fallback path.
func (b *MySQLBackend) BreakLock(ctx context.Context) error {
	return newFallbackLock(&b.sqlBase).BreakLock(ctx)
}
