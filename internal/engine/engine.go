package engine

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yoyo-db/yoyo/internal/backend"
	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/metrics"
	"github.com/yoyo-db/yoyo/internal/planner"
)

// Engine drives a planner.Plan against a Backend: lock acquisition for
// the whole plan, per-migration transactions, per-step savepoints,
// ignore_errors policy, and bookkeeping writes.
//
// Grounded on yoyo/migrations.py MigrationList.apply/rollback and
// TransactionManager/SavepointTransactionManager.
type Engine struct {
	b           backend.Backend
	logger      *zap.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer
	backendName string
	username    string
	hostname    string
}

// New constructs an Engine bound to an already-connected Backend. mc may
// be nil to disable metrics recording; backendName tags metrics (e.g.
// "postgres", "mysql", "sqlite").
func New(b backend.Backend, logger *zap.Logger, mc *metrics.Collector, backendName string) *Engine {
	return &Engine{
		b:           b,
		logger:      logger.With(zap.String("component", "engine")),
		metrics:     mc,
		tracer:      otel.Tracer("yoyo/engine"),
		backendName: backendName,
		username:    currentUsername(),
		hostname:    currentHostname(),
	}
}

// Run acquires the cross-process lock, executes every batch of plan in
// order, and, once the plan completes successfully and did something,
// runs postApply hooks in apply direction without writing bookkeeping
// rows for them. An empty plan is a no-op and never acquires the lock.
func (e *Engine) Run(ctx context.Context, plan *planner.Plan, lockTimeout time.Duration, postApply []*graph.Migration) error {
	if plan.Empty() {
		e.logger.Info("plan has nothing to do")
		return nil
	}

	waitStart := time.Now()
	release, err := e.b.Lock(ctx, lockTimeout)
	waited := time.Since(waitStart)
	if err != nil {
		e.metrics.RecordLockWait(waited, "timeout")
		return fmt.Errorf("acquire lock: %w", err)
	}
	e.metrics.RecordLockWait(waited, "acquired")
	defer func() {
		if rerr := release(ctx); rerr != nil {
			e.logger.Error("release lock failed", zap.Error(rerr))
		}
	}()

	ctx, span := e.tracer.Start(ctx, "yoyo.plan")
	defer span.End()

	e.logger.Info("plan started", zap.Int("batches", len(plan.Batches)))

	for _, batch := range plan.Batches {
		if err := e.runBatch(ctx, batch); err != nil {
			return err
		}
	}

	if len(postApply) > 0 {
		if err := e.runPostApply(ctx, postApply); err != nil {
			return err
		}
	}

	e.logger.Info("plan finished")
	return nil
}

func (e *Engine) runBatch(ctx context.Context, batch planner.Batch) error {
	for _, m := range batch.Migrations {
		if err := e.runMigration(ctx, m, batch.Direction, batch.Operation); err != nil {
			return err
		}
	}
	return nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func currentHostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
