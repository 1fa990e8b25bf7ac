// Package loader discovers migration files from a list of source
// specifiers, parses them, and produces the ordered, de-duplicated
// Migration slice that internal/graph builds its DAG from.
//
// Grounded on yoyo/migrations.py read_migrations / _expand_sources /
// Migration.load.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/scripts"
	"github.com/yoyo-db/yoyo/internal/yerrors"
)

// Loader scans source specifiers and parses them into Migrations.
type Loader struct {
	registry *scripts.Registry
}

// New constructs a Loader backed by the given code-script registry. A nil
// registry disables code-script discovery entirely.
func New(registry *scripts.Registry) *Loader {
	return &Loader{registry: registry}
}

// Result is the loader's output: the graph vertices plus the post-apply
// hooks, which are never part of the graph.
type Result struct {
	Migrations []*graph.Migration
	PostApply  []*graph.Migration
}

// Load resolves every source specifier (filesystem glob or
// "package:<name>:<subpath>") and returns the parsed migration set.
// Directory scans for independent specifiers run concurrently; the
// resulting ids are still merged and conflict-checked deterministically
// regardless of scan order.
func (l *Loader) Load(ctx context.Context, specifiers []string) (*Result, error) {
	dirs, err := expandSpecifiers(specifiers)
	if err != nil {
		return nil, err
	}

	perDir := make([][]*graph.Migration, len(dirs))
	perDirPost := make([][]*graph.Migration, len(dirs))

	g, _ := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			ms, post, err := l.loadDir(dir)
			if err != nil {
				return err
			}
			perDir[i] = ms
			perDirPost[i] = post
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string) // id -> source dir, for the conflict message
	var merged []*graph.Migration
	var mergedPost []*graph.Migration
	for i, ms := range perDir {
		for _, m := range ms {
			if prior, ok := seen[m.ID]; ok {
				return nil, &yerrors.LoadError{
					Path:   m.SourcePath,
					Reason: fmt.Sprintf("id %q already loaded from %s", m.ID, prior),
				}
			}
			seen[m.ID] = dirs[i]
			merged = append(merged, m)
		}
		mergedPost = append(mergedPost, perDirPost[i]...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	sort.Slice(mergedPost, func(i, j int) bool { return mergedPost[i].ID < mergedPost[j].ID })

	return &Result{Migrations: merged, PostApply: mergedPost}, nil
}

// expandSpecifiers turns each source specifier into a concrete directory
// path, expanding glob metacharacters. A "package:<name>:<subpath>"
// specifier is passed through unresolved: it is matched against code-script
// SourceHints only, since this Go build has no runtime package-data lookup.
func expandSpecifiers(specifiers []string) ([]string, error) {
	var dirs []string
	for _, spec := range specifiers {
		if strings.HasPrefix(spec, "package:") {
			dirs = append(dirs, spec)
			continue
		}
		matches, err := filepath.Glob(spec)
		if err != nil {
			return nil, &yerrors.LoadError{Path: spec, Reason: "invalid glob", Err: err}
		}
		if matches == nil {
			return nil, &yerrors.LoadError{Path: spec, Reason: "no directories matched"}
		}
		dirs = append(dirs, matches...)
	}
	return dirs, nil
}

// loadDir parses every recognized file in one resolved directory (or
// looks up one package: source hint in the code-script registry).
func (l *Loader) loadDir(dir string) (migrations, postApply []*graph.Migration, err error) {
	if strings.HasPrefix(dir, "package:") {
		return l.loadCodeScripts(dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, &yerrors.LoadError{Path: dir, Reason: "cannot read directory", Err: err}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		switch {
		case strings.HasSuffix(name, ".rollback.sql"):
			continue // consumed as a sibling of its apply file
		case strings.HasSuffix(name, ".sql"):
			m, err := l.loadSQLMigration(dir, path)
			if err != nil {
				return nil, nil, err
			}
			if m.IsPostApply {
				postApply = append(postApply, m)
			} else {
				migrations = append(migrations, m)
			}
		default:
			// Non-SQL files (code-script source, README, etc.) are not
			// parsed directly; a matching code-script registration (if
			// any) is picked up via loadCodeScripts below keyed on dir.
		}
	}

	if l.registry != nil {
		extra, extraPost, err := l.loadCodeScripts(dir)
		if err != nil {
			return nil, nil, err
		}
		migrations = append(migrations, extra...)
		postApply = append(postApply, extraPost...)
	}

	return migrations, postApply, nil
}

func (l *Loader) loadCodeScripts(sourceHint string) (migrations, postApply []*graph.Migration, err error) {
	if l.registry == nil {
		return nil, nil, nil
	}
	for _, reg := range l.registry.ForSourceHint(sourceHint) {
		m, err := reg.Build()
		if err != nil {
			return nil, nil, &yerrors.LoadError{Path: sourceHint, Reason: "code-script build failed", Err: err}
		}
		if m.IsPostApply {
			postApply = append(postApply, m)
		} else {
			migrations = append(migrations, m)
		}
	}
	return migrations, postApply, nil
}

// stem returns a filename with its final extension removed,
// e.g. "0001_init.sql" -> "0001_init".
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func (l *Loader) loadSQLMigration(dir, path string) (*graph.Migration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &yerrors.LoadError{Path: path, Reason: "cannot read file", Err: err}
	}

	id := stem(filepath.Base(path))
	m := graph.NewMigration(id, path, graph.KindSQLPair)

	directives := ParseDirectives(string(raw))
	m.DependsOn = directives.DependsOn
	if directives.TransactionalSeen {
		m.Transactional = directives.Transactional
	}

	applyStatements := SplitStatements(string(raw))
	if len(applyStatements) > 0 {
		applyStatements[0] = stripDirectiveComments(applyStatements[0])
	}

	var rollbackStatements []string
	rollbackPath := strings.TrimSuffix(path, ".sql") + ".rollback.sql"
	if raw, err := os.ReadFile(rollbackPath); err == nil {
		rollbackStatements = SplitStatements(string(raw))
	} else if !os.IsNotExist(err) {
		return nil, &yerrors.LoadError{Path: rollbackPath, Reason: "cannot read rollback file", Err: err}
	}

	m.Steps = pairApplyRollback(applyStatements, rollbackStatements)
	return m, nil
}

// pairApplyRollback implements §4.1's deterministic pairing: statement i
// of apply pairs with statement n-1-i of the rollback file only when
// counts match; otherwise the entire rollback file, in its own statement
// order, is attached to the last apply step.
func pairApplyRollback(applyStatements, rollbackStatements []string) []*graph.Step {
	steps := make([]*graph.Step, 0, len(applyStatements))
	if len(applyStatements) == 0 {
		return steps
	}

	sameCount := len(rollbackStatements) == len(applyStatements)

	// Reverse rollback statements so statement i of apply pairs with the
	// rollback statement that would undo it when executed last-applied-first.
	reversed := make([]string, len(rollbackStatements))
	for i, s := range rollbackStatements {
		reversed[len(rollbackStatements)-1-i] = s
	}

	for i, applySQL := range applyStatements {
		step := &graph.Step{Index: i, Apply: graph.SQLPayload(applySQL)}
		if sameCount {
			step.Rollback = graph.SQLPayload(reversed[i])
		} else if i == len(applyStatements)-1 && len(reversed) > 0 {
			step.Rollback = graph.SQLPayload(strings.Join(rollbackStatements, ";\n"))
		}
		steps = append(steps, step)
	}
	return steps
}
