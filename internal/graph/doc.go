// Package graph models migrations, steps and the dependency DAG built
// from a loaded migration set. See internal/loader for how Migrations
// are produced, and internal/planner for how the graph is turned into an
// apply/rollback plan.
package graph
