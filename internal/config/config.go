// Package config loads named connection bundles for the registry.
//
// Sources are layered with koanf, lowest precedence first: built-in
// defaults, a YAML file (leaprow.yaml or leaprow.yml), LEAPROW_* environment
// variables and explicitly set CLI flags.
//
//	default: main
//	connections:
//	  main:    { kind: sqlite, path: app.db }
//	  replica: { kind: postgres, host: db, database: app, password: ${PGPASS} }
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"

	"github.com/leapstack-labs/leaprow/pkg/adapter"
	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
)

// Config is the loaded connection configuration.
type Config struct {
	// Default is the connection name resolved for an empty name.
	Default     string
	Connections map[string]core.Config
	// File is the config file that was read, empty when none was found.
	File string
}

// Names returns the configured connection names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every bundle names a registered adapter kind.
func (c *Config) Validate() error {
	var errs []error
	for _, name := range c.Names() {
		cfg := c.Connections[name]
		if !cfg.HasKind() {
			errs = append(errs, &core.ConnectionError{Name: name, Err: core.ErrConnectionMisconfigured})
			continue
		}
		if !adapter.IsRegistered(cfg.NormalizedKind()) {
			errs = append(errs, fmt.Errorf("connection %q: %w", name, &adapter.UnknownAdapterError{
				Kind:      cfg.Kind,
				Available: adapter.ListAdapters(),
			}))
		}
	}
	return errors.Join(errs...)
}

// Register stores every bundle in reg and makes Default the registry's
// default name. Names already present in reg keep their existing entry.
func (c *Config) Register(reg *conn.Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for _, name := range c.Names() {
		if !reg.Register(name, c.Connections[name]) {
			logger.Warn("connection already registered, keeping existing entry", slog.String("conn", name))
		}
	}
	if c.Default != "" {
		reg.SetDefaultName(c.Default)
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns. Unset variables are left as written.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

func expandConfigEnvVars(cfg *core.Config) {
	cfg.Password = expandEnvVars(cfg.Password)
	cfg.Username = expandEnvVars(cfg.Username)
	cfg.Host = expandEnvVars(cfg.Host)
}
