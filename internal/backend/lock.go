package backend

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/yoyo-db/yoyo/internal/yerrors"
)

// fallbackLock implements the insert-sentinel locking protocol used by
// backends without a native advisory-lock primitive (sqlite); break-lock
// clears its row for every backend. A single row is inserted into
// yoyo_lock; the insert's uniqueness constraint on the fixed primary key
// is the mutex. Losers poll with bounded exponential backoff.
//
// Grounded on yoyo/backends/base.py DatabaseBackend.acquire_lock /
// _insert_lock_row / _delete_lock_row / break_lock.
type fallbackLock struct {
	b *sqlBase
}

const lockRowKey = 1

func newFallbackLock(b *sqlBase) *fallbackLock { return &fallbackLock{b: b} }

func (fl *fallbackLock) Lock(ctx context.Context, timeout time.Duration) (func(ctx context.Context) error, error) {
	timeout = timeoutOrDefault(timeout)
	deadline := time.Now().Add(timeout)
	pid := os.Getpid()

	backoff := 50 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for {
		ok, err := fl.tryInsert(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return func(ctx context.Context) error { return fl.release(ctx, pid) }, nil
		}
		// A retry that would land past the deadline is not attempted.
		wait := backoff + time.Duration(rand.Int63n(int64(backoff)/2))
		if time.Now().Add(wait).After(deadline) {
			return nil, fl.timeoutError(ctx, timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// timeoutError reports who currently holds yoyo_lock, per spec.md's
// requirement that a lock timeout name the holder's pid and ctime.
func (fl *fallbackLock) timeoutError(ctx context.Context, timeout time.Duration) error {
	pid, ctime, err := fl.currentHolder(ctx)
	if err != nil {
		return &yerrors.LockError{Timeout: true, Err: fmt.Errorf("timed out after %s (holder unknown: %w)", timeout, err)}
	}
	return &yerrors.LockError{
		Timeout:   true,
		HolderPID: pid,
		Err:       fmt.Errorf("timed out after %s (held since %s)", timeout, ctime.UTC().Format(time.RFC3339)),
	}
}

// currentHolder reads the pid and ctime of the row currently holding the
// lock. Returns an error if the row disappeared between the failed
// insert and this read, which the caller treats as "holder unknown".
func (fl *fallbackLock) currentHolder(ctx context.Context) (int, time.Time, error) {
	p := fl.b.dialect.placeholder
	rows, err := fl.b.query(ctx,
		fmt.Sprintf("SELECT pid, ctime FROM %s WHERE locked = %s", fl.b.QuoteIdentifier(lockTableName), p(1)),
		lockRowKey)
	if err != nil {
		return 0, time.Time{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, time.Time{}, fmt.Errorf("lock row not found")
	}
	var pid int
	var ctime time.Time
	if err := rows.Scan(&pid, &ctime); err != nil {
		return 0, time.Time{}, err
	}
	return pid, ctime, nil
}

func (fl *fallbackLock) tryInsert(ctx context.Context, pid int) (bool, error) {
	p := fl.b.dialect.placeholder
	err := fl.b.Execute(ctx,
		fmt.Sprintf("INSERT INTO %s (locked, ctime, pid) VALUES (%s, %s, %s)",
			fl.b.QuoteIdentifier(lockTableName), p(1), p(2), p(3)),
		lockRowKey, time.Now().UTC(), pid)
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (fl *fallbackLock) release(ctx context.Context, pid int) error {
	p := fl.b.dialect.placeholder
	return fl.b.Execute(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE locked = %s AND pid = %s",
			fl.b.QuoteIdentifier(lockTableName), p(1), p(2)),
		lockRowKey, pid)
}

// BreakLock forcibly clears the lock row regardless of owner, for the
// `break-lock` command when a prior process died holding it.
func (fl *fallbackLock) BreakLock(ctx context.Context) error {
	p := fl.b.dialect.placeholder
	return fl.b.Execute(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE locked = %s", fl.b.QuoteIdentifier(lockTableName), p(1)),
		lockRowKey)
}

// isUniqueViolation recognizes primary-key/unique constraint violations
// across the three dialects' distinct driver error shapes. It is
// intentionally conservative: a false negative here just means an
// unrelated error aborts the lock loop, which is the safer failure mode.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	// pgx reports SQLSTATE 23505; go-sql-driver/mysql reports error 1062;
	// modernc.org/sqlite reports SQLITE_CONSTRAINT. None of these drivers
	// are imported here (sqlbackend.go only imports database/sql), so the
	// check is string-based rather than against a typed sentinel.
	for _, needle := range []string{"23505", "1062", "unique constraint", "constraint failed", "duplicate key"} {
		if containsFold(msg, needle) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	ls, lsub := toLower(s), toLower(substr)
	for i := 0; i+len(lsub) <= len(ls); i++ {
		if ls[i:i+len(lsub)] == lsub {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
