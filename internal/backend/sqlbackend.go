package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yoyo-db/yoyo/internal/graph"
)

// dialect captures the per-DBMS variance §4.4 calls out: identifier
// quoting, placeholder style, and the physical column types used for the
// logical bookkeeping schema in §6.
type dialect struct {
	name               string
	driverName         string
	idOpen, idClose    string
	placeholder        func(n int) string
	varchar            func(n int) string
	text               string
	timestamp          string
	integer            string
	hasSavepoints      bool
	createLockTableSQL string
}

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }
func questionPlaceholder(int) string { return "?" }

// sqlBase implements the parts of Backend common to every dialect on top
// of database/sql: connection lifecycle, transaction/savepoint bookkeeping,
// statement execution, and the bookkeeping table DML. Concrete backends
// embed it and supply a dialect plus Lock/BreakLock.
//
// Grounded on yoyo/backends/base.py DatabaseBackend, TransactionManager
// and SavepointTransactionManager.
type sqlBase struct {
	dialect     dialect
	db          *sql.DB
	tx          *sql.Tx
	redactedURL string
	spCounter   int64
	migTable    string
}

func (b *sqlBase) Connect(ctx context.Context, rawURL string, open func(driver, dsn string) (*sql.DB, error)) error {
	dsn, redacted, err := toDSN(rawURL, b.dialect.name)
	if err != nil {
		return err
	}
	b.redactedURL = redacted

	db, err := open(b.dialect.driverName, dsn)
	if err != nil {
		return &ConnectError{RedactedURL: redacted, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectError{RedactedURL: redacted, Err: err}
	}
	b.db = db
	return nil
}

// ConnectError mirrors yerrors.ConnectionError but stays local to this
// package to avoid an import cycle; callers that want the shared taxonomy
// wrap it with yerrors.ConnectionError at the boundary.
type ConnectError struct {
	RedactedURL string
	Err         error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect to %s: %v", e.RedactedURL, e.Err) }
func (e *ConnectError) Unwrap() error  { return e.Err }

func (b *sqlBase) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *sqlBase) RedactedURL() string { return b.redactedURL }

func (b *sqlBase) Begin(ctx context.Context) error {
	if b.tx != nil {
		return fmt.Errorf("already inside a transaction")
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	b.tx = tx
	return nil
}

func (b *sqlBase) Commit(ctx context.Context) error {
	if b.tx == nil {
		return nil
	}
	err := b.tx.Commit()
	b.tx = nil
	return err
}

func (b *sqlBase) Rollback(ctx context.Context) error {
	if b.tx == nil {
		return nil
	}
	err := b.tx.Rollback()
	b.tx = nil
	return err
}

func (b *sqlBase) SupportsSavepoints() bool { return b.dialect.hasSavepoints }

func (b *sqlBase) NextSavepointName() string {
	n := atomic.AddInt64(&b.spCounter, 1)
	return fmt.Sprintf("yoyo_sp_%d", n)
}

func (b *sqlBase) Savepoint(ctx context.Context, name string) error {
	if !b.dialect.hasSavepoints {
		return nil
	}
	return b.Execute(ctx, "SAVEPOINT "+name)
}

func (b *sqlBase) SavepointRelease(ctx context.Context, name string) error {
	if !b.dialect.hasSavepoints {
		return nil
	}
	return b.Execute(ctx, "RELEASE SAVEPOINT "+name)
}

func (b *sqlBase) SavepointRollback(ctx context.Context, name string) error {
	if !b.dialect.hasSavepoints {
		return nil
	}
	return b.Execute(ctx, "ROLLBACK TO SAVEPOINT "+name)
}

func (b *sqlBase) Execute(ctx context.Context, sqlText string, args ...any) error {
	var err error
	if b.tx != nil {
		_, err = b.tx.ExecContext(ctx, sqlText, args...)
	} else {
		_, err = b.db.ExecContext(ctx, sqlText, args...)
	}
	return err
}

func (b *sqlBase) query(ctx context.Context, sqlText string, args ...any) (*sql.Rows, error) {
	if b.tx != nil {
		return b.tx.QueryContext(ctx, sqlText, args...)
	}
	return b.db.QueryContext(ctx, sqlText, args...)
}

func (b *sqlBase) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, b.dialect.idClose, b.dialect.idClose+b.dialect.idClose)
	return b.dialect.idOpen + escaped + b.dialect.idClose
}

// Conn adapts sqlBase to graph.Conn so code-script step callables can run
// SQL against whatever transaction is currently open.
func (b *sqlBase) Conn() graph.Conn { return connAdapter{b} }

type connAdapter struct{ b *sqlBase }

func (c connAdapter) ExecContext(query string, args ...any) error {
	return c.b.Execute(context.Background(), query, args...)
}

// toDSN normalizes a yoyo connection URL (scheme[+driver]://...) into the
// driver-specific DSN database/sql expects, and returns a
// credential-redacted form of the same URL for error messages, per §7's
// "reported with the URL (password redacted)".
func toDSN(rawURL, dialectName string) (dsn, redacted string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid connection url: %w", err)
	}
	redacted = u.Redacted()

	switch dialectName {
	case "postgres":
		// pgx/stdlib accepts the URL form directly.
		return rawURL, redacted, nil
	case "mysql":
		return mysqlDSNFromURL(u), redacted, nil
	case "sqlite":
		return sqliteDSNFromURL(u), redacted, nil
	default:
		return rawURL, redacted, nil
	}
}

func mysqlDSNFromURL(u *url.URL) string {
	user := u.User.Username()
	pass, _ := u.User.Password()
	host := u.Host
	if host == "" {
		host = "127.0.0.1:3306"
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	cred := user
	if pass != "" {
		cred += ":" + pass
	}
	dsn := fmt.Sprintf("%s@tcp(%s)/%s", cred, host, dbName)
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	} else {
		dsn += "?parseTime=true"
	}
	return dsn
}

func sqliteDSNFromURL(u *url.URL) string {
	path := u.Opaque
	if path == "" {
		path = u.Path
	}
	if u.Host != "" {
		path = u.Host + path
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

// timeoutOrDefault substitutes the library default of 10s per §4.5's lock
// timeout when the caller did not specify one.
func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
