package core

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Config is a connection config bundle: a driver discriminator (Kind) plus
// the driver-specific keys needed to open a database handle.
type Config struct {
	Kind     string            `koanf:"kind" mapstructure:"kind"`         // sqlite, postgres, mysql, duckdb
	Path     string            `koanf:"path" mapstructure:"path"`         // file-based databases
	Host     string            `koanf:"host" mapstructure:"host"`         // network databases
	Port     int               `koanf:"port" mapstructure:"port"`         // 0 means driver default
	Database string            `koanf:"database" mapstructure:"database"` // database name
	Username string            `koanf:"username" mapstructure:"username"`
	Password string            `koanf:"password" mapstructure:"password"`
	Charset  string            `koanf:"charset" mapstructure:"charset"`
	Options  map[string]string `koanf:"options" mapstructure:"options"` // DSN options (sslmode, ...)
	Params   map[string]any    `koanf:"params" mapstructure:"params"`   // adapter-specific settings
}

// HasKind reports whether the bundle names a driver.
func (c Config) HasKind() bool {
	return strings.TrimSpace(c.Kind) != ""
}

// NormalizedKind returns the lower-cased driver discriminator.
func (c Config) NormalizedKind() string {
	return strings.ToLower(strings.TrimSpace(c.Kind))
}

// Redacted returns a copy safe for logging.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "****"
	}
	return c
}

// ConfigFromMap decodes a raw config bundle such as
//
//	{"kind": "sqlite", "path": "app.db", "pragmas": {...}}
//
// Keys that are not Config fields are collected into Params, so adapters can
// decode them into their own parameter structs.
func ConfigFromMap(raw map[string]any) (Config, error) {
	var cfg Config
	var md mapstructure.Metadata

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Config{}, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("failed to decode connection config: %w", err)
	}

	for _, key := range md.Unused {
		if cfg.Params == nil {
			cfg.Params = make(map[string]any)
		}
		if _, exists := cfg.Params[key]; !exists {
			cfg.Params[key] = raw[key]
		}
	}

	return cfg, nil
}

// DecodeParams decodes an adapter's Params into out using mapstructure.
// A nil or empty params map leaves out untouched.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("failed to decode adapter params: %w", err)
	}
	return nil
}
