package duckdb

import "github.com/leapstack-labs/leaprow/pkg/core"

// Params is the duckdb section of a connection bundle. Every key the bundle
// carries besides kind, path and the pool settings lands here.
type Params struct {
	Extensions []string          `mapstructure:"extensions"`
	Secrets    []SecretConfig    `mapstructure:"secrets"`
	Settings   map[string]string `mapstructure:"settings"`
}

// SecretConfig renders to one CREATE SECRET statement per session.
type SecretConfig struct {
	Type     string `mapstructure:"type"`
	Provider string `mapstructure:"provider"`
	Region   string `mapstructure:"region,omitempty"`
	// Scope is a single path or a list of paths.
	Scope    any    `mapstructure:"scope,omitempty"`
	KeyID    string `mapstructure:"key_id,omitempty"`
	Secret   string `mapstructure:"secret,omitempty"`
	Endpoint string `mapstructure:"endpoint,omitempty"`
	URLStyle string `mapstructure:"url_style,omitempty"`
	// UseSSL is left out of the statement when nil.
	UseSSL *bool `mapstructure:"use_ssl,omitempty"`
}

// parseParams decodes adapter params into Params.
// A nil or empty map yields an empty Params.
func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if err := core.DecodeParams(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}
