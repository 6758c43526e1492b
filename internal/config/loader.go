package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "leaprow.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "leaprow.yml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// key levels: LEAPROW_CONNECTIONS__MAIN__PATH sets connections.main.path.
const EnvPrefix = "LEAPROW_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// Options controls where Load looks for configuration.
type Options struct {
	// File is an explicit config path. When empty, Dir and its parents are searched.
	File string
	// Dir is the search start directory; empty means the working directory.
	Dir string
	// Flags are CLI flags; only flags the user changed are applied.
	// --conn overrides the default connection name.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults, the config file, the environment and
// flags, in increasing order of precedence.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"default": conn.DefaultName,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := opts.File
	if path == "" {
		dir := opts.Dir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		if root := FindProjectRoot(dir); root != "" {
			path = findConfigFile(root)
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name != "conn" {
				return "", nil
			}
			return "default", posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := &Config{
		Default:     k.String("default"),
		Connections: make(map[string]core.Config),
		File:        path,
	}
	for _, name := range k.MapKeys("connections") {
		bundle, err := core.ConfigFromMap(k.Cut("connections." + name).Raw())
		if err != nil {
			return nil, fmt.Errorf("connection %q: %w", name, err)
		}
		expandConfigEnvVars(&bundle)
		cfg.Connections[name] = bundle
	}

	return cfg, nil
}

// envKey maps LEAPROW_CONNECTIONS__MAIN__PATH to connections.main.path.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// findConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to find a directory containing
// leaprow.yaml or leaprow.yml. Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if findConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
	return ""
}
