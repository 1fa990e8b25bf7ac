// Package metrics holds the Prometheus instrumentation the engine
// records around plan execution: migrations applied/rolled back,
// per-step duration, and lock-wait time. Purely observational — nothing
// here influences control flow.
package metrics
