package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yoyo-db/yoyo/internal/backend"
	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/planner"
)

// fakeBackend is an in-memory backend.Backend used to verify the
// engine's control flow (transaction/savepoint ordering, bookkeeping
// writes, ignore_errors swallow paths) without a live database or a
// mocked SQL driver — that layer is backend's own responsibility and is
// covered by its sqlmock-based tests.
type fakeBackend struct {
	supportsSavepoints bool
	execErrs           map[string]error // sql text -> error to return once

	calls []string
	applied map[string]backend.AppliedRecord
	logs    []backend.LogRecord
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		supportsSavepoints: true,
		execErrs:           make(map[string]error),
		applied:            make(map[string]backend.AppliedRecord),
	}
}

func (f *fakeBackend) Connect(ctx context.Context, url string) error { return nil }
func (f *fakeBackend) Close() error                                  { return nil }
func (f *fakeBackend) RedactedURL() string                           { return "" }

func (f *fakeBackend) Begin(ctx context.Context) error    { f.calls = append(f.calls, "begin"); return nil }
func (f *fakeBackend) Commit(ctx context.Context) error   { f.calls = append(f.calls, "commit"); return nil }
func (f *fakeBackend) Rollback(ctx context.Context) error { f.calls = append(f.calls, "rollback"); return nil }

func (f *fakeBackend) SupportsSavepoints() bool { return f.supportsSavepoints }
func (f *fakeBackend) Savepoint(ctx context.Context, name string) error {
	f.calls = append(f.calls, "savepoint:"+name)
	return nil
}
func (f *fakeBackend) SavepointRelease(ctx context.Context, name string) error {
	f.calls = append(f.calls, "release:"+name)
	return nil
}
func (f *fakeBackend) SavepointRollback(ctx context.Context, name string) error {
	f.calls = append(f.calls, "sp_rollback:"+name)
	return nil
}

func (f *fakeBackend) Execute(ctx context.Context, sql string, args ...any) error {
	f.calls = append(f.calls, "exec:"+sql)
	if err, ok := f.execErrs[sql]; ok {
		delete(f.execErrs, sql)
		return err
	}
	return nil
}

func (f *fakeBackend) Conn() graph.Conn               { return nil }
func (f *fakeBackend) QuoteIdentifier(n string) string { return n }

func (f *fakeBackend) EnsureBookkeeping(ctx context.Context, table string) error { return nil }

func (f *fakeBackend) AppliedSet(ctx context.Context) (map[string]backend.AppliedRecord, error) {
	return f.applied, nil
}
func (f *fakeBackend) InsertApplied(ctx context.Context, rec backend.AppliedRecord) error {
	f.calls = append(f.calls, "insert_applied:"+rec.MigrationID)
	f.applied[rec.MigrationID] = rec
	return nil
}
func (f *fakeBackend) DeleteApplied(ctx context.Context, hash string) error {
	f.calls = append(f.calls, "delete_applied:"+hash)
	for id, rec := range f.applied {
		if rec.Hash == hash {
			delete(f.applied, id)
		}
	}
	return nil
}
func (f *fakeBackend) AppendLog(ctx context.Context, rec backend.LogRecord) error {
	f.calls = append(f.calls, "log:"+string(rec.Operation)+":"+rec.MigrationID)
	f.logs = append(f.logs, rec)
	return nil
}
func (f *fakeBackend) RecentLog(ctx context.Context, limit int) ([]backend.LogRecord, error) {
	return f.logs, nil
}

func (f *fakeBackend) Lock(ctx context.Context, timeout time.Duration) (func(ctx context.Context) error, error) {
	f.calls = append(f.calls, "lock")
	return func(ctx context.Context) error {
		f.calls = append(f.calls, "unlock")
		return nil
	}, nil
}
func (f *fakeBackend) BreakLock(ctx context.Context) error { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

func newTestEngine(b backend.Backend) *Engine {
	return New(b, zap.NewNop(), nil, "fake")
}

func migWithStep(id string, transactional bool, apply, rollback string) *graph.Migration {
	m := graph.NewMigration(id, id+".sql", graph.KindSQLPair)
	m.Transactional = transactional
	step := &graph.Step{Index: 0}
	if apply != "" {
		step.Apply = graph.SQLPayload(apply)
	}
	if rollback != "" {
		step.Rollback = graph.SQLPayload(rollback)
	}
	m.Steps = []*graph.Step{step}
	return m
}

func TestRun_EmptyPlan_NeverLocks(t *testing.T) {
	fb := newFakeBackend()
	e := newTestEngine(fb)

	err := e.Run(context.Background(), &planner.Plan{}, time.Second, nil)
	require.NoError(t, err)
	assert.Empty(t, fb.calls)
}

func TestRun_ApplyBatch_TransactionalMigration(t *testing.T) {
	fb := newFakeBackend()
	e := newTestEngine(fb)
	m := migWithStep("0001", true, "CREATE TABLE t(id int)", "DROP TABLE t")

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirApply,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.NoError(t, err)

	assert.Contains(t, fb.calls, "lock")
	assert.Contains(t, fb.calls, "begin")
	assert.Contains(t, fb.calls, "savepoint:yoyo_sp_1")
	assert.Contains(t, fb.calls, "exec:CREATE TABLE t(id int)")
	assert.Contains(t, fb.calls, "release:yoyo_sp_1")
	assert.Contains(t, fb.calls, "insert_applied:0001")
	assert.Contains(t, fb.calls, "commit")
	assert.Contains(t, fb.calls, "unlock")
	_, applied := fb.applied["0001"]
	assert.True(t, applied)
}

func TestRun_RollbackBatch_RunsRollbackPayloadAndDeletesApplied(t *testing.T) {
	fb := newFakeBackend()
	m := migWithStep("0001", true, "CREATE TABLE t(id int)", "DROP TABLE t")
	fb.applied["0001"] = backend.AppliedRecord{Hash: m.Hash, MigrationID: "0001"}
	e := newTestEngine(fb)

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirRollback,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.NoError(t, err)

	assert.Contains(t, fb.calls, "exec:DROP TABLE t")
	assert.Contains(t, fb.calls, "delete_applied:"+m.Hash)
	_, stillApplied := fb.applied["0001"]
	assert.False(t, stillApplied)
}

func TestRun_StepError_IgnoredByPolicy_ContinuesAndRollsBackSavepoint(t *testing.T) {
	fb := newFakeBackend()
	fb.execErrs["BAD SQL"] = errors.New("syntax error")
	e := newTestEngine(fb)

	m := graph.NewMigration("0001", "0001.sql", graph.KindSQLPair)
	failing := &graph.Step{Index: 0, Apply: graph.SQLPayload("BAD SQL"), IgnoreErrors: graph.IgnoreApply}
	ok := &graph.Step{Index: 1, Apply: graph.SQLPayload("OK SQL")}
	m.Steps = []*graph.Step{failing, ok}

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirApply,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.NoError(t, err)

	assert.Contains(t, fb.calls, "sp_rollback:yoyo_sp_1")
	assert.Contains(t, fb.calls, "exec:OK SQL")
	assert.Contains(t, fb.calls, "commit")
}

func TestRun_StepError_NotIgnored_AbortsAndRollsBackTransaction(t *testing.T) {
	fb := newFakeBackend()
	fb.execErrs["BAD SQL"] = errors.New("syntax error")
	e := newTestEngine(fb)

	m := graph.NewMigration("0001", "0001.sql", graph.KindSQLPair)
	failing := &graph.Step{Index: 0, Apply: graph.SQLPayload("BAD SQL")}
	m.Steps = []*graph.Step{failing}

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirApply,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.Error(t, err)
	assert.Contains(t, fb.calls, "rollback")
	assert.NotContains(t, fb.calls, "commit")
	assert.NotContains(t, fb.calls, "insert_applied:0001")
}

func TestRun_NonTransactionalFailure_NoRollbackAttempted(t *testing.T) {
	fb := newFakeBackend()
	fb.execErrs["BAD SQL"] = errors.New("syntax error")
	e := newTestEngine(fb)

	m := graph.NewMigration("0001", "0001.sql", graph.KindSQLPair)
	m.Transactional = false
	failing := &graph.Step{Index: 0, Apply: graph.SQLPayload("BAD SQL")}
	m.Steps = []*graph.Step{failing}

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirApply,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.Error(t, err)
	assert.NotContains(t, fb.calls, "begin")
	assert.NotContains(t, fb.calls, "rollback")
}

func TestRun_GroupStep_SharesSavepointAndIgnoresViaGroupPolicy(t *testing.T) {
	fb := newFakeBackend()
	fb.execErrs["GROUP BAD"] = errors.New("boom")
	e := newTestEngine(fb)

	m := graph.NewMigration("0001", "0001.sql", graph.KindSQLPair)
	group := &graph.Step{
		Index:        0,
		IgnoreErrors: graph.IgnoreAll,
		Nested: []*graph.Step{
			{Index: 0, Apply: graph.SQLPayload("GROUP OK")},
			{Index: 1, Apply: graph.SQLPayload("GROUP BAD")},
		},
	}
	after := &graph.Step{Index: 1, Apply: graph.SQLPayload("AFTER GROUP")}
	m.Steps = []*graph.Step{group, after}

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirApply,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.NoError(t, err)

	assert.Contains(t, fb.calls, "exec:GROUP OK")
	assert.Contains(t, fb.calls, "sp_rollback:yoyo_sp_1")
	assert.Contains(t, fb.calls, "exec:AFTER GROUP")
	assert.Contains(t, fb.calls, "commit")
}

func TestRun_BookkeepingOnlyBatch_SkipsStepsAndTransaction(t *testing.T) {
	fb := newFakeBackend()
	e := newTestEngine(fb)
	m := migWithStep("0001", true, "SHOULD NOT RUN", "")

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirApply,
		Operation:  planner.OpBookkeepingOnly,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.NoError(t, err)

	assert.NotContains(t, fb.calls, "begin")
	assert.NotContains(t, fb.calls, "exec:SHOULD NOT RUN")
	assert.Contains(t, fb.calls, "insert_applied:0001")
	assert.Contains(t, fb.calls, "log:mark:0001")
}

func TestRun_PostApplyHook_RunsAfterPlanWithoutBookkeeping(t *testing.T) {
	fb := newFakeBackend()
	e := newTestEngine(fb)
	m := migWithStep("0001", true, "CREATE TABLE t(id int)", "")
	hook := migWithStep("post-apply", true, "ANALYZE t", "")

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirApply,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{m},
	}}}

	err := e.Run(context.Background(), plan, time.Second, []*graph.Migration{hook})
	require.NoError(t, err)

	assert.Contains(t, fb.calls, "exec:ANALYZE t")
	assert.NotContains(t, fb.calls, "insert_applied:post-apply")
}

func TestRun_GhostRollback_DeletesBookkeepingWithNoSteps(t *testing.T) {
	fb := newFakeBackend()
	ghost := graph.GhostMigration("0000")
	fb.applied["0000"] = backend.AppliedRecord{Hash: ghost.Hash, MigrationID: "0000"}
	e := newTestEngine(fb)

	plan := &planner.Plan{Batches: []planner.Batch{{
		Direction:  planner.DirRollback,
		Operation:  planner.OpExecute,
		Migrations: []*graph.Migration{ghost},
	}}}

	err := e.Run(context.Background(), plan, time.Second, nil)
	require.NoError(t, err)

	assert.Contains(t, fb.calls, "delete_applied:"+ghost.Hash)
	_, stillApplied := fb.applied["0000"]
	assert.False(t, stillApplied)
}
