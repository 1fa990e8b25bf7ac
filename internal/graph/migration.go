// Package graph holds the migration data model and the dependency graph
// built from a loaded set of migrations: discovery-independent, it only
// knows about Migrations, Steps and the edges between them.
//
// It is grounded on yoyo/migrations.py (Migration, StepBase, TransactionWrapper,
// StepGroup) from the original implementation, re-expressed with explicit
// Go types instead of Python's dynamic module-exec trick.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
)

// Kind distinguishes how a Migration's steps were produced.
type Kind int

const (
	// KindSQLPair is a <stem>.sql file, optionally paired with a
	// <stem>.rollback.sql sibling.
	KindSQLPair Kind = iota
	// KindInlineCodeScript is a migration whose steps were registered
	// in Go code via the scripts package, rather than parsed from SQL.
	KindInlineCodeScript
)

func (k Kind) String() string {
	switch k {
	case KindSQLPair:
		return "sql-pair"
	case KindInlineCodeScript:
		return "inline-code-script"
	default:
		return "unknown"
	}
}

// IgnoreErrors controls which execution directions swallow a database
// error at a given step or group instead of aborting the plan.
type IgnoreErrors int

const (
	IgnoreNone IgnoreErrors = iota
	IgnoreApply
	IgnoreRollback
	IgnoreAll
)

// Covers reports whether this policy swallows an error encountered while
// executing in the given direction ("apply" or "rollback").
func (i IgnoreErrors) Covers(direction string) bool {
	switch i {
	case IgnoreAll:
		return true
	case IgnoreApply:
		return direction == "apply"
	case IgnoreRollback:
		return direction == "rollback"
	default:
		return false
	}
}

// Payload is either a SQL string or a Callable invoked with a live
// connection. Exactly one of the two accessors is meaningful; SQL()'s
// second return reports whether this payload is a SQL string at all.
type Payload struct {
	sql      string
	isSQL    bool
	callable Callable
}

// Callable is the signature code-script steps use for their apply/rollback
// payloads. It receives the engine's live connection for the migration.
type Callable func(conn Conn) error

// Conn is the minimal connection surface a code-script step needs. The
// engine's backend package supplies the concrete implementation; graph
// stays free of any database/sql import so it can be unit tested in
// isolation.
type Conn interface {
	ExecContext(query string, args ...any) error
}

// SQLPayload builds a Payload that executes a literal SQL statement.
func SQLPayload(sql string) Payload {
	return Payload{sql: sql, isSQL: true}
}

// CallablePayload builds a Payload that invokes an opaque callable.
func CallablePayload(fn Callable) Payload {
	return Payload{callable: fn}
}

// IsZero reports whether this payload carries neither SQL nor a callable,
// i.e. an apply/rollback slot that was never set (a step with no rollback).
func (p Payload) IsZero() bool {
	return !p.isSQL && p.callable == nil
}

// SQL returns the SQL text and true if this payload is a SQL statement.
func (p Payload) SQL() (string, bool) { return p.sql, p.isSQL }

// CallableFn returns the callable and true if this payload is a callable.
func (p Payload) CallableFn() (Callable, bool) { return p.callable, p.callable != nil }

// Step is one sub-unit of a Migration. A group Step carries nested Steps
// in Nested and ignores Apply/Rollback.
type Step struct {
	Index        int
	Apply        Payload
	Rollback     Payload
	IgnoreErrors IgnoreErrors

	// Nested holds child steps when this Step is a group. A group shares
	// one savepoint across all of Nested and its own IgnoreErrors policy
	// governs the whole group.
	Nested []*Step
}

// IsGroup reports whether this Step is a group of nested steps rather
// than a single apply/rollback pair.
func (s *Step) IsGroup() bool { return len(s.Nested) > 0 }

// Migration is a named unit of schema change: an id, its dependency set,
// and an ordered list of Steps.
type Migration struct {
	ID            string
	SourcePath    string
	Kind          Kind
	DependsOn     map[string]struct{}
	Steps         []*Step
	Transactional bool
	IsPostApply   bool
	Hash          string

	// Ghost is true for a vertex synthesized from the applied-set because
	// its source file is no longer present. Ghosts carry no steps and are
	// never selected to apply.
	Ghost bool
}

// NewMigration constructs a Migration with its Hash pre-computed and a
// non-nil (possibly empty) DependsOn set.
func NewMigration(id, sourcePath string, kind Kind) *Migration {
	return &Migration{
		ID:            id,
		SourcePath:    sourcePath,
		Kind:          kind,
		DependsOn:     make(map[string]struct{}),
		Transactional: true,
		Hash:          MigrationHash(id),
		IsPostApply:   id == "post-apply",
	}
}

// GhostMigration synthesizes a vertex for an id recorded as applied but
// no longer present among the loaded sources.
func GhostMigration(id string) *Migration {
	m := NewMigration(id, "", KindSQLPair)
	m.Ghost = true
	return m
}

// MigrationHash returns the bookkeeping primary key for a migration id:
// the hex SHA-256 digest of the id, matching yoyo's get_migration_hash.
func MigrationHash(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
