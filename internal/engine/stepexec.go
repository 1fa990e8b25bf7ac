package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/planner"
	"github.com/yoyo-db/yoyo/internal/yerrors"
)

// runMigration executes (or bookkeeping-only updates) one migration in
// one direction, per §4.3: a connection-scoped transaction iff
// Transactional, a savepoint per top-level step, and applied/log row
// writes sharing that transaction on success.
func (e *Engine) runMigration(ctx context.Context, m *graph.Migration, dir planner.Direction, op planner.Operation) error {
	ctx, span := e.tracer.Start(ctx, "yoyo.migration", trace.WithAttributes(
		attribute.String("migration.id", m.ID),
		attribute.String("migration.direction", dir.String()),
	))
	defer span.End()

	if op == planner.OpBookkeepingOnly {
		var err error
		if dir == planner.DirApply {
			err = e.writeMark(ctx, m)
		} else {
			err = e.writeUnmark(ctx, m)
		}
		if err != nil {
			return err
		}
		e.logger.Info("bookkeeping updated", zap.String("migration", m.ID), zap.String("direction", dir.String()))
		return nil
	}

	if m.Transactional {
		if err := e.b.Begin(ctx); err != nil {
			return fmt.Errorf("begin transaction for %s: %w", m.ID, err)
		}
	}

	steps := m.Steps
	if dir == planner.DirRollback {
		steps = reversedSteps(steps)
	}

	spCounter := 0
	for _, step := range steps {
		if err := e.runStep(ctx, m, step, dir, &spCounter); err != nil {
			if m.Transactional {
				if rerr := e.b.Rollback(ctx); rerr != nil {
					e.logger.Error("rollback transaction after step failure", zap.String("migration", m.ID), zap.Error(rerr))
				}
				if lerr := e.writeFailureLog(ctx, m, dir, err); lerr != nil {
					e.logger.Error("failed to record failure log", zap.String("migration", m.ID), zap.Error(lerr))
				}
				e.logger.Error("migration failed", zap.String("migration", m.ID), zap.Error(err))
				return err
			}
			if lerr := e.writeFailureLog(ctx, m, dir, err); lerr != nil {
				e.logger.Error("failed to record failure log", zap.String("migration", m.ID), zap.Error(lerr))
			}
			e.logger.Error("non-transactional migration failed, database left partially migrated",
				zap.String("migration", m.ID), zap.Error(err))
			var execErr *yerrors.ExecutionError
			if errors.As(err, &execErr) {
				return &yerrors.NonTransactionalFailureError{ExecutionError: execErr}
			}
			return err
		}
	}

	if err := e.writeBookkeeping(ctx, m, dir); err != nil {
		if m.Transactional {
			if rerr := e.b.Rollback(ctx); rerr != nil {
				e.logger.Error("rollback transaction after bookkeeping failure", zap.String("migration", m.ID), zap.Error(rerr))
			}
		}
		return err
	}

	if m.Transactional {
		if err := e.b.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction for %s: %w", m.ID, err)
		}
	}

	verb := "applied"
	if dir == planner.DirRollback {
		verb = "rolled back"
		e.metrics.RecordMigrationRolledBack(e.backendName)
	} else {
		e.metrics.RecordMigrationApplied(e.backendName)
	}
	e.logger.Info("migration "+verb, zap.String("migration", m.ID))
	return nil
}

// runStep dispatches a single top-level Step: a group recurses through
// runGroup, a leaf step runs under its own savepoint.
func (e *Engine) runStep(ctx context.Context, m *graph.Migration, step *graph.Step, dir planner.Direction, spCounter *int) error {
	if step.IsGroup() {
		return e.runGroup(ctx, m, step, dir, spCounter)
	}
	return e.runLeafStep(ctx, m, step, dir, spCounter)
}

func (e *Engine) runLeafStep(ctx context.Context, m *graph.Migration, step *graph.Step, dir planner.Direction, spCounter *int) error {
	start := time.Now()
	payload := stepPayload(step, dir)
	if payload.IsZero() {
		return nil
	}

	useSavepoint := m.Transactional && e.b.SupportsSavepoints()
	var spName string
	if useSavepoint {
		spName = e.newSavepointName(spCounter)
		if err := e.b.Savepoint(ctx, spName); err != nil {
			return fmt.Errorf("create savepoint for %s step %d: %w", m.ID, step.Index, err)
		}
	}

	if err := e.execPayload(ctx, payload); err != nil {
		execErr := &yerrors.ExecutionError{MigrationID: m.ID, StepIndex: step.Index, Statement: payloadDescription(payload), Err: err}
		if step.IgnoreErrors.Covers(dir.String()) {
			e.logger.Warn("step error ignored", zap.String("migration", m.ID), zap.Int("step", step.Index), zap.Error(err))
			if useSavepoint {
				if rerr := e.b.SavepointRollback(ctx, spName); rerr != nil {
					return fmt.Errorf("rollback savepoint for %s step %d: %w", m.ID, step.Index, rerr)
				}
			}
			e.recordStepDuration(dir, "ignored", start)
			return nil
		}
		if useSavepoint {
			if rerr := e.b.SavepointRollback(ctx, spName); rerr != nil {
				e.logger.Error("rollback savepoint after unhandled error", zap.String("migration", m.ID), zap.Error(rerr))
			}
		}
		e.recordStepDuration(dir, "failed", start)
		return execErr
	}

	if useSavepoint {
		if err := e.b.SavepointRelease(ctx, spName); err != nil {
			return fmt.Errorf("release savepoint for %s step %d: %w", m.ID, step.Index, err)
		}
	}
	e.recordStepDuration(dir, "ok", start)
	return nil
}

// runGroup executes a group's nested steps as one sequence sharing a
// single savepoint: the group's own IgnoreErrors governs the whole
// group, overriding any nested leaf step's policy. A nested group gets
// its own sub-savepoint, so groups may nest to arbitrary depth.
func (e *Engine) runGroup(ctx context.Context, m *graph.Migration, group *graph.Step, dir planner.Direction, spCounter *int) error {
	start := time.Now()
	useSavepoint := m.Transactional && e.b.SupportsSavepoints()
	var spName string
	if useSavepoint {
		spName = e.newSavepointName(spCounter)
		if err := e.b.Savepoint(ctx, spName); err != nil {
			return fmt.Errorf("create group savepoint for %s step %d: %w", m.ID, group.Index, err)
		}
	}

	nested := group.Nested
	if dir == planner.DirRollback {
		nested = reversedSteps(nested)
	}

	var failure error
	for _, child := range nested {
		if child.IsGroup() {
			if err := e.runGroup(ctx, m, child, dir, spCounter); err != nil {
				failure = err
				break
			}
			continue
		}
		payload := stepPayload(child, dir)
		if payload.IsZero() {
			continue
		}
		if err := e.execPayload(ctx, payload); err != nil {
			failure = &yerrors.ExecutionError{MigrationID: m.ID, StepIndex: child.Index, Statement: payloadDescription(payload), Err: err}
			break
		}
	}

	if failure != nil {
		if group.IgnoreErrors.Covers(dir.String()) {
			e.logger.Warn("group error ignored", zap.String("migration", m.ID), zap.Int("group", group.Index), zap.Error(failure))
			if useSavepoint {
				if rerr := e.b.SavepointRollback(ctx, spName); rerr != nil {
					return fmt.Errorf("rollback group savepoint for %s step %d: %w", m.ID, group.Index, rerr)
				}
			}
			e.recordStepDuration(dir, "ignored", start)
			return nil
		}
		if useSavepoint {
			if rerr := e.b.SavepointRollback(ctx, spName); rerr != nil {
				e.logger.Error("rollback group savepoint after unhandled error", zap.String("migration", m.ID), zap.Error(rerr))
			}
		}
		e.recordStepDuration(dir, "failed", start)
		return failure
	}

	if useSavepoint {
		if err := e.b.SavepointRelease(ctx, spName); err != nil {
			return fmt.Errorf("release group savepoint for %s step %d: %w", m.ID, group.Index, err)
		}
	}
	e.recordStepDuration(dir, "ok", start)
	return nil
}

// runPostApply executes post-apply hooks in apply direction after a
// successful plan. No bookkeeping row is written for them, per §3.
func (e *Engine) runPostApply(ctx context.Context, hooks []*graph.Migration) error {
	for _, m := range hooks {
		if err := e.runPostApplyHook(ctx, m); err != nil {
			return fmt.Errorf("post-apply hook %s: %w", m.ID, err)
		}
		e.logger.Info("post-apply hook executed", zap.String("migration", m.ID))
	}
	return nil
}

func (e *Engine) runPostApplyHook(ctx context.Context, m *graph.Migration) error {
	ctx, span := e.tracer.Start(ctx, "yoyo.post_apply", trace.WithAttributes(attribute.String("migration.id", m.ID)))
	defer span.End()

	if m.Transactional {
		if err := e.b.Begin(ctx); err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
	}

	spCounter := 0
	for _, step := range m.Steps {
		if err := e.runStep(ctx, m, step, planner.DirApply, &spCounter); err != nil {
			if m.Transactional {
				if rerr := e.b.Rollback(ctx); rerr != nil {
					e.logger.Error("rollback post-apply transaction", zap.Error(rerr))
				}
			}
			return err
		}
	}

	if m.Transactional {
		if err := e.b.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
	}
	return nil
}

func (e *Engine) newSavepointName(spCounter *int) string {
	*spCounter++
	return fmt.Sprintf("yoyo_sp_%d", *spCounter)
}

func (e *Engine) execPayload(ctx context.Context, payload graph.Payload) error {
	if sqlText, ok := payload.SQL(); ok {
		return e.b.Execute(ctx, sqlText)
	}
	if fn, ok := payload.CallableFn(); ok {
		return fn(e.b.Conn())
	}
	return nil
}

func (e *Engine) recordStepDuration(dir planner.Direction, outcome string, start time.Time) {
	e.metrics.RecordStepDuration(dir.String(), outcome, time.Since(start))
}

func stepPayload(step *graph.Step, dir planner.Direction) graph.Payload {
	if dir == planner.DirRollback {
		return step.Rollback
	}
	return step.Apply
}

func payloadDescription(payload graph.Payload) string {
	if sqlText, ok := payload.SQL(); ok {
		return sqlText
	}
	return "<callable>"
}

func reversedSteps(steps []*graph.Step) []*graph.Step {
	out := make([]*graph.Step, len(steps))
	for i, s := range steps {
		out[len(steps)-1-i] = s
	}
	return out
}
