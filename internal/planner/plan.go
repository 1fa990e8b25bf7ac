// Package planner turns a graph.Graph and the backend's current
// applied-set into an ordered Plan the engine can execute: which
// migrations, in what order, in which direction, and whether their steps
// actually run or bookkeeping alone is updated.
//
// Grounded on yoyo/migrations.py MigrationList.to_apply/to_rollback and
// yoyo/scripts/main.py's apply/rollback/reapply/develop/mark/unmark
// command handlers, split here into pure planning functions the CLI and
// engine share instead of being interleaved with argument parsing.
package planner

import "github.com/yoyo-db/yoyo/internal/graph"

// Direction is the order migrations execute in: apply runs steps
// forward, rollback runs them in reverse.
type Direction int

const (
	DirApply Direction = iota
	DirRollback
)

func (d Direction) String() string {
	if d == DirRollback {
		return "rollback"
	}
	return "apply"
}

// Operation distinguishes a normal execution batch from a mark/unmark
// batch that only touches bookkeeping.
type Operation int

const (
	OpExecute Operation = iota
	OpBookkeepingOnly
)

// Batch is one direction+operation pass over an ordered list of
// migrations. Migrations is always listed in the order steps should run
// in (already reversed for DirRollback).
type Batch struct {
	Direction  Direction
	Operation  Operation
	Migrations []*graph.Migration
}

// Plan is one or more Batches executed under a single lock acquisition.
// apply/rollback/mark/unmark produce a single-batch Plan; reapply and
// develop produce two.
type Plan struct {
	Batches []Batch
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	for _, b := range p.Batches {
		if len(b.Migrations) > 0 {
			return false
		}
	}
	return true
}

func resolve(g *graph.Graph, ids []string) []*graph.Migration {
	out := make([]*graph.Migration, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.Get(id))
	}
	return out
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func idSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
