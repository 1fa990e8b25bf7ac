// Package config resolves the flat settings object every component
// reads from: connection URL, migration sources, lock timeout, and the
// logging/telemetry/metrics knobs. Loaded from a YAML file with
// YOYO_-prefixed environment overrides; the core never parses YAML or
// reads the environment directly.
package config
