package planner

import (
	"fmt"

	"github.com/yoyo-db/yoyo/internal/graph"
)

// ToApply builds the forward plan: every currently-unapplied, non-ghost
// migration (target "" or "all"), or a single target plus its unapplied
// ancestors.
//
// Grounded on yoyo/migrations.py MigrationList.to_apply.
func ToApply(g *graph.Graph, applied map[string]struct{}, target string) (*Plan, error) {
	ids, err := selectApply(g, applied, target)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder(ids)
	if err != nil {
		return nil, fmt.Errorf("order apply plan: %w", err)
	}
	return &Plan{Batches: []Batch{{
		Direction:  DirApply,
		Operation:  OpExecute,
		Migrations: resolve(g, order),
	}}}, nil
}

// selectApply computes the unordered id set for an apply-direction
// selection, shared with Mark.
func selectApply(g *graph.Graph, applied map[string]struct{}, target string) ([]string, error) {
	selected := make(map[string]struct{})

	if target == "" || target == "all" {
		for _, id := range g.IDs() {
			m := g.Get(id)
			if m.Ghost {
				continue
			}
			if _, done := applied[id]; done {
				continue
			}
			selected[id] = struct{}{}
		}
		return idSet(selected), nil
	}

	m := g.Get(target)
	if m == nil {
		return nil, fmt.Errorf("unknown migration id %q", target)
	}
	if m.Ghost {
		return nil, fmt.Errorf("migration %q has no source file to apply", target)
	}

	candidates := g.Ancestors(target)
	candidates[target] = struct{}{}

	for id := range candidates {
		cm := g.Get(id)
		if cm.Ghost {
			continue
		}
		if _, done := applied[id]; done {
			continue
		}
		selected[id] = struct{}{}
	}
	return idSet(selected), nil
}
