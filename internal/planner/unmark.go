package planner

import (
	"fmt"

	"github.com/yoyo-db/yoyo/internal/graph"
)

// Unmark builds a bookkeeping-only reverse batch: the target plus its
// applied descendants lose their applied row and get an "unmark" log
// entry, but no step runs. mark(m) then unmark(m) restores the
// applied-set, with the log rows from both left in place.
//
// Grounded on yoyo/scripts/main.py unmark_command.
func Unmark(g *graph.Graph, applied map[string]struct{}, target string, ghostAware bool) (*Plan, error) {
	if target == "" {
		return nil, fmt.Errorf("unmark requires a target migration id")
	}
	ids, err := selectRollback(g, applied, target, ghostAware)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder(ids)
	if err != nil {
		return nil, fmt.Errorf("order unmark plan: %w", err)
	}
	return &Plan{Batches: []Batch{{
		Direction:  DirRollback,
		Operation:  OpBookkeepingOnly,
		Migrations: resolve(g, reversed(order)),
	}}}, nil
}
