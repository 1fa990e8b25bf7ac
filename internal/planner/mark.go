package planner

import (
	"fmt"

	"github.com/yoyo-db/yoyo/internal/graph"
)

// Mark builds a bookkeeping-only forward batch: the target plus its
// unapplied ancestors get an applied row and a "mark" log entry, but no
// step runs. Safe to call repeatedly (InsertApplied is idempotent).
//
// Grounded on yoyo/scripts/main.py mark_command.
func Mark(g *graph.Graph, applied map[string]struct{}, target string) (*Plan, error) {
	if target == "" {
		return nil, fmt.Errorf("mark requires a target migration id")
	}
	ids, err := selectApply(g, applied, target)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder(ids)
	if err != nil {
		return nil, fmt.Errorf("order mark plan: %w", err)
	}
	return &Plan{Batches: []Batch{{
		Direction:  DirApply,
		Operation:  OpBookkeepingOnly,
		Migrations: resolve(g, order),
	}}}, nil
}
