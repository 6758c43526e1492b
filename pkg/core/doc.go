// Package core defines the shared language of the LeapRow data-access layer.
//
// This package contains:
//   - The connection config bundle (Config) consumed by adapters and the registry
//   - The error categories surfaced to callers (configuration, connection, query)
//
// The Golden Rule: pkg/core imports ONLY stdlib and mapstructure.
// All other packages depend on core, not the reverse.
package core
