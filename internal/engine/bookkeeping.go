package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yoyo-db/yoyo/internal/backend"
	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/planner"
)

// writeBookkeeping records the outcome of a migration's apply or
// rollback: an applied-set row insert/delete plus an append-only log
// row. It is also used for a ghost vertex being rolled back, which has
// no steps to run but still needs its applied row removed.
func (e *Engine) writeBookkeeping(ctx context.Context, m *graph.Migration, dir planner.Direction) error {
	now := time.Now().UTC()

	if dir == planner.DirApply {
		if err := e.b.InsertApplied(ctx, backend.AppliedRecord{
			Hash:        m.Hash,
			MigrationID: m.ID,
			AppliedAt:   now,
			AppliedBy:   e.username,
		}); err != nil {
			return fmt.Errorf("record applied %s: %w", m.ID, err)
		}
		return e.appendLog(ctx, m, backend.OpApply, now)
	}

	if err := e.b.DeleteApplied(ctx, m.Hash); err != nil {
		return fmt.Errorf("remove applied record for %s: %w", m.ID, err)
	}
	return e.appendLog(ctx, m, backend.OpRollback, now)
}

// writeMark and writeUnmark cover the bookkeeping-only batches mark/
// unmark produce: the applied-set changes but no step ever runs.
func (e *Engine) writeMark(ctx context.Context, m *graph.Migration) error {
	now := time.Now().UTC()
	if err := e.b.InsertApplied(ctx, backend.AppliedRecord{
		Hash:        m.Hash,
		MigrationID: m.ID,
		AppliedAt:   now,
		AppliedBy:   e.username,
	}); err != nil {
		return fmt.Errorf("mark %s applied: %w", m.ID, err)
	}
	return e.appendLog(ctx, m, backend.OpMark, now)
}

func (e *Engine) writeUnmark(ctx context.Context, m *graph.Migration) error {
	now := time.Now().UTC()
	if err := e.b.DeleteApplied(ctx, m.Hash); err != nil {
		return fmt.Errorf("unmark %s: %w", m.ID, err)
	}
	return e.appendLog(ctx, m, backend.OpUnmark, now)
}

// writeFailureLog records an unhandled step failure as its own
// autocommitted log row, written after the migration's transaction has
// already been rolled back so it survives the abort.
func (e *Engine) writeFailureLog(ctx context.Context, m *graph.Migration, dir planner.Direction, reason error) error {
	op := backend.OpApplyFail
	if dir == planner.DirRollback {
		op = backend.OpRollbackFail
	}
	return e.b.AppendLog(ctx, backend.LogRecord{
		ID:          uuid.NewString(),
		MigrationID: m.ID,
		Hash:        m.Hash,
		Operation:   op,
		Username:    e.username,
		Hostname:    e.hostname,
		Comment:     reason.Error(),
		CreatedAt:   time.Now().UTC(),
	})
}

func (e *Engine) appendLog(ctx context.Context, m *graph.Migration, op backend.LogOperation, at time.Time) error {
	return e.b.AppendLog(ctx, backend.LogRecord{
		ID:          uuid.NewString(),
		MigrationID: m.ID,
		Hash:        m.Hash,
		Operation:   op,
		Username:    e.username,
		Hostname:    e.hostname,
		CreatedAt:   at,
	})
}
