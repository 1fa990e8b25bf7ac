// Package planner computes ordered, directioned Plans from a graph.Graph
// and the backend's current applied-set. It has no database dependency
// of its own beyond the applied-id set and log records passed in by the
// caller, so it is unit-testable without a live connection.
package planner
