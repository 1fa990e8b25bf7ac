// Package telemetry wraps OTel SDK initialization for tracing spans
// around plan, migration and post-apply hook execution. When telemetry is disabled, no
// exporter is created and the global tracer provider remains noop.
package telemetry
