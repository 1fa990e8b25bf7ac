// Package engine executes a planner.Plan against a backend.Backend: lock
// acquisition for the whole plan, per-migration transactions, per-step
// savepoints, ignore_errors policy, bookkeeping writes, and the
// observability (logging/metrics/tracing) wrapped around each step.
//
// Grounded on yoyo/migrations.py MigrationList.apply/rollback and
// TransactionManager/SavepointTransactionManager.
package engine
