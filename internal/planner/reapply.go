package planner

import "github.com/yoyo-db/yoyo/internal/graph"

// Reapply is a rollback plan for target followed by an apply plan for
// the same migrations, observationally equivalent to rollback(m);
// apply(m) when every step is transactional and deterministic.
//
// Grounded on yoyo/scripts/main.py reapply_migrations.
func Reapply(g *graph.Graph, applied map[string]struct{}, target string, ghostAware bool) (*Plan, error) {
	down, err := ToRollback(g, applied, target, ghostAware)
	if err != nil {
		return nil, err
	}

	upIDs := make([]string, 0, len(down.Batches[0].Migrations))
	for _, m := range down.Batches[0].Migrations {
		upIDs = append(upIDs, m.ID)
	}
	order, err := g.TopologicalOrder(upIDs)
	if err != nil {
		return nil, err
	}

	return &Plan{Batches: []Batch{
		down.Batches[0],
		{Direction: DirApply, Operation: OpExecute, Migrations: resolve(g, order)},
	}}, nil
}
