package graph

import "container/heap"

// idHeap is a min-heap of migration ids, giving TopologicalOrder its
// "lexicographically smallest ready id" tie-break.
type idHeap []string

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// TopologicalOrder returns every vertex in ids in dependency-then-filename
// order: at each step, among all vertices whose unsatisfied dependencies
// are zero, the lexicographically smallest id is emitted next. Dependency
// edges to ids outside the given subset are treated as already satisfied
// (this lets callers order a restricted subset, e.g. {m} union ancestors(m),
// without the rest of the graph being in scope).
//
// Grounded on yoyo/migrations.py topological_sort, reworked from its
// frame-stability trick into a plain Kahn's algorithm with a heap, to match
// this spec's explicit lexicographic tie-break rather than input-order
// stability.
func (g *Graph) TopologicalOrder(ids []string) ([]string, error) {
	subset := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		subset[id] = struct{}{}
	}

	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		m := g.byID[id]
		deg := 0
		for dep := range m.DependsOn {
			if _, inSubset := subset[dep]; inSubset {
				deg++
				dependents[dep] = append(dependents[dep], id)
			}
		}
		indegree[id] = deg
	}

	ready := &idHeap{}
	for _, id := range ids {
		if indegree[id] == 0 {
			heap.Push(ready, id)
		}
	}

	out := make([]string, 0, len(ids))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		out = append(out, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	if len(out) != len(ids) {
		return nil, errCycleInSubset
	}
	return out, nil
}

var errCycleInSubset = &cycleError{}

type cycleError struct{}

func (*cycleError) Error() string {
	return "cycle detected while ordering migration subset"
}
