package graph

import (
	"fmt"
	"sort"

	"github.com/yoyo-db/yoyo/internal/yerrors"
)

// Graph is the DAG of Migrations built from a loaded source set plus the
// backend's applied-set. Edges point from dependency to dependent.
type Graph struct {
	byID map[string]*Migration
}

// Build validates a loaded migration set against the current applied-set
// and constructs the Graph. appliedIDs holds every migration id the
// backend currently records as applied; any id in appliedIDs that is not
// present in migrations becomes a ghost vertex.
//
// Grounded on yoyo/migrations.py MigrationList (duplicate-id conflicts)
// and topologicalsort.py (cycle detection walks forward_edges).
func Build(migrations []*Migration, appliedIDs map[string]struct{}) (*Graph, error) {
	g := &Graph{byID: make(map[string]*Migration, len(migrations))}

	for _, m := range migrations {
		if _, dup := g.byID[m.ID]; dup {
			return nil, &yerrors.LoadError{
				Path:   m.SourcePath,
				Reason: fmt.Sprintf("duplicate migration id %q", m.ID),
			}
		}
		g.byID[m.ID] = m
	}

	for id := range appliedIDs {
		if _, ok := g.byID[id]; !ok {
			g.byID[id] = GhostMigration(id)
		}
	}

	for _, m := range g.byID {
		for dep := range m.DependsOn {
			if _, ok := g.byID[dep]; !ok {
				return nil, &yerrors.LoadError{
					Path:   m.SourcePath,
					Reason: fmt.Sprintf("migration %q depends on unknown id %q", m.ID, dep),
				}
			}
		}
	}

	if cyc := g.findCycle(); cyc != nil {
		return nil, &yerrors.LoadError{
			Reason: fmt.Sprintf("circular dependency: %v", cyc),
		}
	}

	return g, nil
}

// Get returns the migration with the given id, or nil if absent.
func (g *Graph) Get(id string) *Migration { return g.byID[id] }

// All returns every vertex, in arbitrary order.
func (g *Graph) All() []*Migration {
	out := make([]*Migration, 0, len(g.byID))
	for _, m := range g.byID {
		out = append(out, m)
	}
	return out
}

// IDs returns every vertex id, sorted lexicographically.
func (g *Graph) IDs() []string {
	out := make([]string, 0, len(g.byID))
	for id := range g.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// findCycle performs a DFS over forward edges (dependency -> dependent)
// and returns the path of a cycle if one exists, else nil.
func (g *Graph) findCycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.byID))
	var path []string
	var cycle []string

	forward := g.forwardEdges()

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		path = append(path, id)
		for _, next := range forward[id] {
			switch state[next] {
			case visiting:
				// Found the start of the cycle within path.
				for i, p := range path {
					if p == next {
						cycle = append(append([]string{}, path[i:]...), next)
						return true
					}
				}
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return false
	}

	for _, id := range g.IDs() {
		if state[id] == unvisited {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// forwardEdges maps a migration id to the ids of migrations that depend
// on it, sorted for determinism.
func (g *Graph) forwardEdges() map[string][]string {
	fwd := make(map[string][]string, len(g.byID))
	for _, m := range g.byID {
		for dep := range m.DependsOn {
			fwd[dep] = append(fwd[dep], m.ID)
		}
	}
	for dep := range fwd {
		sort.Strings(fwd[dep])
	}
	return fwd
}
