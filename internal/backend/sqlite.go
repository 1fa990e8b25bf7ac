package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:          "sqlite",
	driverName:    "sqlite",
	idOpen:        `"`,
	idClose:       `"`,
	placeholder:   questionPlaceholder,
	varchar:       func(n int) string { return fmt.Sprintf("varchar(%d)", n) },
	text:          "text",
	timestamp:     "timestamp",
	integer:       "integer",
	hasSavepoints: true,
}

// SQLiteBackend is the modernc.org/sqlite-backed (pure Go, no cgo) Backend.
// SQLite has no cross-connection advisory lock primitive, so locking
// always goes through the fallback sentinel-row protocol.
//
// Grounded on yoyo/backends/sqlite.py SQLiteBackend.
type SQLiteBackend struct {
	sqlBase
}

func NewSQLiteBackend() *SQLiteBackend {
	b := &SQLiteBackend{}
	b.dialect = sqliteDialect
	return b
}

func init() {
	ctor := func() Backend { return NewSQLiteBackend() }
	register("sqlite", ctor)
	register("sqlite3", ctor)
	// file:// is a bare database file path, as the original tool's
	// sqlite backend also accepts.
	register("file", ctor)
}

func (b *SQLiteBackend) Connect(ctx context.Context, rawURL string) error {
	if err := b.sqlBase.Connect(ctx, rawURL, sql.Open); err != nil {
		return err
	}
	// A single connection is required: SQLite serializes writers anyway,
	// and the fallback lock protocol plus savepoint state assume one
	// physical connection backs the whole sqlBase.
	b.db.SetMaxOpenConns(1)
	return nil
}

func (b *SQLiteBackend) Lock(ctx context.Context, timeout time.Duration) (func(ctx context.Context) error, error) {
	return newFallbackLock(&b.sqlBase).Lock(ctx, timeout)
}

func (b *SQLiteBackend) BreakLock(ctx context.Context) error {
	return newFallbackLock(&b.sqlBase).BreakLock(ctx)
}
