package planner

import (
	"fmt"

	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/yerrors"
)

// ToRollback builds the reverse plan: every currently-applied migration
// (target "" or "all"), or a single target plus its applied descendants.
//
// Rollback order is the exact reverse of the order the same set would
// have been applied in, so dependents are undone before their
// dependencies. If the selection includes a ghost vertex (an applied id
// with no source file) and ghostAware is false, this is the "dangling
// rollback target" validation error; with ghostAware true the ghost is
// included and the engine will delete its bookkeeping row without
// running any steps, since a ghost has none.
//
// Grounded on yoyo/migrations.py MigrationList.to_rollback.
func ToRollback(g *graph.Graph, applied map[string]struct{}, target string, ghostAware bool) (*Plan, error) {
	ids, err := selectRollback(g, applied, target, ghostAware)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder(ids)
	if err != nil {
		return nil, fmt.Errorf("order rollback plan: %w", err)
	}
	return &Plan{Batches: []Batch{{
		Direction:  DirRollback,
		Operation:  OpExecute,
		Migrations: resolve(g, reversed(order)),
	}}}, nil
}

func selectRollback(g *graph.Graph, applied map[string]struct{}, target string, ghostAware bool) ([]string, error) {
	var candidates map[string]struct{}

	if target == "" || target == "all" {
		candidates = make(map[string]struct{}, len(applied))
		for id := range applied {
			candidates[id] = struct{}{}
		}
	} else {
		m := g.Get(target)
		if m == nil {
			return nil, fmt.Errorf("unknown migration id %q", target)
		}
		candidates = g.Descendants(target)
		candidates[target] = struct{}{}
		for id := range candidates {
			if _, done := applied[id]; !done {
				delete(candidates, id)
			}
		}
	}

	selected := make(map[string]struct{}, len(candidates))
	for id := range candidates {
		cm := g.Get(id)
		if cm.Ghost && !ghostAware {
			return nil, &yerrors.LoadError{
				Path:   id,
				Reason: fmt.Sprintf("dangling rollback target: %q is applied but has no source file (retry with ghost-aware mode)", id),
			}
		}
		selected[id] = struct{}{}
	}
	return idSet(selected), nil
}
