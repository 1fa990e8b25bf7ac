/*
Package main is the yoyo command-line entry point.

# Overview

cmd/yoyo is a one-shot CLI, not a long-lived service: each invocation
loads configuration, connects to one database, does one unit of work
(apply, rollback, list, ...) and exits. There is no HTTP server and no
hot-reload.

# Core types

  - sharedFlags — options common to every subcommand (§6)
  - session     — a subcommand's bootstrapped dependencies: connected
    backend, bound engine, loaded graph, applied set

# Capabilities

  - Subcommands: new, list, apply, rollback, reapply, develop, mark,
    unmark, init, break-lock, version, help
  - Config loading: YAML file + YOYO_ environment overrides, same as
    config.Loader
  - Structured logging (zap), optional tracing (OpenTelemetry) and
    metrics (Prometheus), wired the way the engine expects
  - Build-time injection: Version, BuildTime, GitCommit via ldflags
  - Graceful cancellation: signal.NotifyContext(os.Interrupt) at the top
    level, propagated via context to every blocking backend call
*/
package main
