package backend

import (
	"context"
	"fmt"
	"time"
)

const currentBookkeepingVersion = 1

// logTableName, versionTableName and lockTableName are fixed per §6's
// persisted schema; only the migration table name is caller-chosen
// (EnsureBookkeeping's migrationTable argument), matching the teacher's
// single configurable TableName field.
const (
	logTableName     = "_yoyo_log"
	versionTableName = "_yoyo_version"
	lockTableName    = "yoyo_lock"
)

// EnsureBookkeeping idempotently creates the four bookkeeping tables and
// migrates any legacy schema forward using the version row.
//
// Grounded on yoyo/backends/base.py create_lock_table and
// yoyo/internalmigrations.py's upgrade-on-connect pattern (the latter is
// reduced here to a single current version, since this is a from-scratch
// implementation with no legacy schema to migrate from yet).
func (b *sqlBase) EnsureBookkeeping(ctx context.Context, migrationTable string) error {
	if migrationTable == "" {
		migrationTable = "_yoyo_migration"
	}
	b.migTable = migrationTable

	d := b.dialect
	hash := d.varchar(64)
	text := d.text
	ts := d.timestamp
	intT := d.integer

	stmts := []string{
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (migration_hash %s PRIMARY KEY, migration_id %s, applied_at_utc %s, applied_by_user %s)",
			b.QuoteIdentifier(migrationTable), hash, text, ts, text,
		),
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (id %s PRIMARY KEY, migration_hash %s, migration_id %s, operation %s, username %s, hostname %s, comment %s, created_at_utc %s)",
			b.QuoteIdentifier(logTableName), d.varchar(36), hash, text, d.varchar(16), text, text, text, ts,
		),
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (version %s PRIMARY KEY, installed_at_utc %s)",
			b.QuoteIdentifier(versionTableName), intT, ts,
		),
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (locked %s PRIMARY KEY, ctime %s, pid %s NOT NULL)",
			b.QuoteIdentifier(lockTableName), intT, ts, intT,
		),
	}

	for _, stmt := range stmts {
		if err := b.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("ensure bookkeeping schema: %w", err)
		}
	}

	return b.ensureVersion(ctx)
}

func (b *sqlBase) ensureVersion(ctx context.Context) error {
	rows, err := b.query(ctx, fmt.Sprintf("SELECT version FROM %s", b.QuoteIdentifier(versionTableName)))
	if err != nil {
		return fmt.Errorf("read bookkeeping version: %w", err)
	}
	hasRow := rows.Next()
	rows.Close()

	if !hasRow {
		return b.Execute(ctx,
			fmt.Sprintf("INSERT INTO %s (version, installed_at_utc) VALUES (%s, %s)",
				b.QuoteIdentifier(versionTableName), b.dialect.placeholder(1), b.dialect.placeholder(2)),
			currentBookkeepingVersion, time.Now().UTC())
	}
	// A future schema revision would detect version < currentBookkeepingVersion
	// here and run forward-migration DDL; nothing to do yet.
	return nil
}

func (b *sqlBase) AppliedSet(ctx context.Context) (map[string]AppliedRecord, error) {
	rows, err := b.query(ctx, fmt.Sprintf(
		"SELECT migration_hash, migration_id, applied_at_utc, applied_by_user FROM %s ORDER BY applied_at_utc",
		b.QuoteIdentifier(b.migTable)))
	if err != nil {
		return nil, fmt.Errorf("read applied set: %w", err)
	}
	defer rows.Close()

	out := make(map[string]AppliedRecord)
	for rows.Next() {
		var rec AppliedRecord
		if err := rows.Scan(&rec.Hash, &rec.MigrationID, &rec.AppliedAt, &rec.AppliedBy); err != nil {
			return nil, fmt.Errorf("scan applied row: %w", err)
		}
		out[rec.MigrationID] = rec
	}
	return out, rows.Err()
}

// InsertApplied is idempotent: inserting a hash already present is a
// no-op, per §4.3 "the engine checks first".
func (b *sqlBase) InsertApplied(ctx context.Context, rec AppliedRecord) error {
	exists, err := b.hashExists(ctx, b.migTable, rec.Hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	p := b.dialect.placeholder
	return b.Execute(ctx,
		fmt.Sprintf("INSERT INTO %s (migration_hash, migration_id, applied_at_utc, applied_by_user) VALUES (%s, %s, %s, %s)",
			b.QuoteIdentifier(b.migTable), p(1), p(2), p(3), p(4)),
		rec.Hash, rec.MigrationID, rec.AppliedAt, rec.AppliedBy)
}

// DeleteApplied is idempotent: deleting a missing hash is a no-op.
func (b *sqlBase) DeleteApplied(ctx context.Context, hash string) error {
	return b.Execute(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE migration_hash = %s", b.QuoteIdentifier(b.migTable), b.dialect.placeholder(1)),
		hash)
}

func (b *sqlBase) hashExists(ctx context.Context, table, hash string) (bool, error) {
	rows, err := b.query(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE migration_hash = %s", b.QuoteIdentifier(table), b.dialect.placeholder(1)),
		hash)
	if err != nil {
		return false, fmt.Errorf("check existing row: %w", err)
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

func (b *sqlBase) AppendLog(ctx context.Context, rec LogRecord) error {
	p := b.dialect.placeholder
	return b.Execute(ctx,
		fmt.Sprintf(
			"INSERT INTO %s (id, migration_hash, migration_id, operation, username, hostname, comment, created_at_utc) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
			b.QuoteIdentifier(logTableName), p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8)),
		rec.ID, rec.Hash, rec.MigrationID, string(rec.Operation), rec.Username, rec.Hostname, rec.Comment, rec.CreatedAt)
}

func (b *sqlBase) RecentLog(ctx context.Context, limit int) ([]LogRecord, error) {
	rows, err := b.query(ctx, fmt.Sprintf(
		"SELECT id, migration_hash, migration_id, operation, username, hostname, comment, created_at_utc FROM %s ORDER BY created_at_utc DESC",
		b.QuoteIdentifier(logTableName)))
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() && (limit <= 0 || len(out) < limit) {
		var rec LogRecord
		var comment *string
		if err := rows.Scan(&rec.ID, &rec.Hash, &rec.MigrationID, &rec.Operation, &rec.Username, &rec.Hostname, &comment, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		if comment != nil {
			rec.Comment = *comment
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
