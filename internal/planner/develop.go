package planner

import (
	"github.com/yoyo-db/yoyo/internal/backend"
	"github.com/yoyo-db/yoyo/internal/graph"
)

// Develop applies every unapplied migration if any exist; otherwise it
// rolls back and reapplies the n most recently applied migrations,
// identified from the log rather than the graph. recentLog must already
// be sorted newest-first (as RecentLog returns it).
//
// Grounded on yoyo/scripts/main.py develop, the "feedback loop while
// iterating on a migration" command.
func Develop(g *graph.Graph, applied map[string]struct{}, recentLog []backend.LogRecord, n int) (*Plan, error) {
	up, err := ToApply(g, applied, "")
	if err != nil {
		return nil, err
	}
	if !up.Empty() {
		return up, nil
	}

	ids := mostRecentlyApplied(recentLog, n)
	if len(ids) == 0 {
		return &Plan{}, nil
	}

	order, err := g.TopologicalOrder(ids)
	if err != nil {
		return nil, err
	}

	return &Plan{Batches: []Batch{
		{Direction: DirRollback, Operation: OpExecute, Migrations: resolve(g, reversed(order))},
		{Direction: DirApply, Operation: OpExecute, Migrations: resolve(g, order)},
	}}, nil
}

// mostRecentlyApplied walks the log newest-first and returns up to n
// distinct migration ids whose most recent recorded operation was an
// apply: a migration applied, rolled back and reapplied counts once, at
// its most recent apply.
func mostRecentlyApplied(recentLog []backend.LogRecord, n int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range recentLog {
		if len(out) >= n {
			break
		}
		if _, dup := seen[rec.MigrationID]; dup {
			continue
		}
		seen[rec.MigrationID] = struct{}{}
		if rec.Operation == backend.OpApply {
			out = append(out, rec.MigrationID)
		}
	}
	return out
}
