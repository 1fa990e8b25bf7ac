// Package scripts is the Go-native substitute for yoyo's embedded-scripting
// extension point (§9, strategy (a)+documented extension): since this
// module has no dynamic scripting language embedded, an inline code-script
// migration is an ordinary Go source file elsewhere in the caller's module
// that registers itself here from an init() function, instead of a file the
// loader discovers and executes at runtime.
package scripts

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yoyo-db/yoyo/internal/graph"
)

// Collector is passed to a registered Build function; it provides the
// same step/group vocabulary as a SQL migration, mirroring the `step` and
// `group`/`transaction` functions yoyo exposes to Python migration
// modules (StepCollector in migrations.py).
type Collector struct {
	steps []*graph.Step
	next  int
}

// Step appends a single apply/rollback step.
func (c *Collector) Step(apply, rollback graph.Payload, ignore graph.IgnoreErrors) {
	c.steps = append(c.steps, &graph.Step{
		Index:        c.next,
		Apply:        apply,
		Rollback:     rollback,
		IgnoreErrors: ignore,
	})
	c.next++
}

// Group appends a group of nested steps sharing one savepoint.
func (c *Collector) Group(ignore graph.IgnoreErrors, build func(*Collector)) {
	inner := &Collector{}
	build(inner)
	c.steps = append(c.steps, &graph.Step{
		Index:        c.next,
		IgnoreErrors: ignore,
		Nested:       inner.steps,
	})
	c.next++
}

// Registration describes one registered code-script migration.
type Registration struct {
	ID            string
	SourceHint    string
	DependsOn     []string
	Transactional bool
	Build         func(*Collector)
}

// Registry is the process-wide table of registered code-script
// migrations, the Go analogue of yoyo's internalmigrations module
// discovery but populated at init() time instead of at Load() time.
type Registry struct {
	mu   sync.Mutex
	byID map[string]Registration
}

var global = NewRegistry()

// NewRegistry constructs an empty registry. Most callers use the
// package-level Register/Global instead of constructing their own.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Registration)}
}

// Global returns the process-wide registry that Register populates.
func Global() *Registry { return global }

// Register adds a code-script migration to the global registry. It is
// intended to be called from an init() function in the migration's own
// source file.
func Register(r Registration) {
	global.Register(r)
}

// Register adds a code-script migration to this registry.
func (reg *Registry) Register(r Registration) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byID[r.ID] = r
}

// ForSourceHint returns every registration whose SourceHint matches the
// given source, sorted by id for determinism.
func (reg *Registry) ForSourceHint(source string) []Registration {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var out []Registration
	for _, r := range reg.byID {
		if r.SourceHint == source {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Build realizes a Registration into a graph.Migration.
func (r Registration) Build() (*graph.Migration, error) {
	if r.Build == nil {
		return nil, fmt.Errorf("code-script migration %q has no Build function", r.ID)
	}
	m := graph.NewMigration(r.ID, r.SourceHint, graph.KindInlineCodeScript)
	m.Transactional = r.Transactional
	for _, dep := range r.DependsOn {
		m.DependsOn[dep] = struct{}{}
	}
	c := &Collector{}
	r.Build(c)
	m.Steps = c.steps
	return m, nil
}
