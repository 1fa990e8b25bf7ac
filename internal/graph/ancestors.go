package graph

// Ancestors returns the transitive dependency set of the migration with
// the given id (not including the migration itself).
//
// Grounded on yoyo/migrations.py ancestors().
func (g *Graph) Ancestors(id string) map[string]struct{} {
	deps := make(map[string]struct{})
	m := g.byID[id]
	if m == nil {
		return deps
	}

	toProcess := make([]string, 0, len(m.DependsOn))
	for dep := range m.DependsOn {
		toProcess = append(toProcess, dep)
	}

	for len(toProcess) > 0 {
		cur := toProcess[len(toProcess)-1]
		toProcess = toProcess[:len(toProcess)-1]
		if _, seen := deps[cur]; seen {
			continue
		}
		deps[cur] = struct{}{}
		if dm := g.byID[cur]; dm != nil {
			for d := range dm.DependsOn {
				toProcess = append(toProcess, d)
			}
		}
	}
	return deps
}

// Descendants returns every migration that transitively depends on the
// migration with the given id (not including the migration itself).
//
// Grounded on yoyo/migrations.py descendants().
func (g *Graph) Descendants(id string) map[string]struct{} {
	descendants := map[string]struct{}{id: {}}
	for {
		found := false
		for _, m := range g.byID {
			if _, already := descendants[m.ID]; already {
				continue
			}
			for dep := range m.DependsOn {
				if _, inSet := descendants[dep]; inSet {
					descendants[m.ID] = struct{}{}
					found = true
					break
				}
			}
		}
		if !found {
			break
		}
	}
	delete(descendants, id)
	return descendants
}
