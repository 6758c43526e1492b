// Package commands implements the leaprow subcommands.
package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/leapstack-labs/leaprow/internal/config"
	"github.com/leapstack-labs/leaprow/pkg/conn"
)

// Env holds the dependencies shared by commands.
type Env struct {
	Cfg      *config.Config
	Registry *conn.Registry
	Logger   *slog.Logger
}

// NewEnv registers cfg's bundles in a fresh registry.
func NewEnv(cfg *config.Config, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reg := conn.NewRegistry(logger)
	cfg.Register(reg, logger)
	return &Env{Cfg: cfg, Registry: reg, Logger: logger}
}

// Close closes every connection the commands opened.
func (e *Env) Close() error {
	if e == nil || e.Registry == nil {
		return nil
	}
	return e.Registry.Close()
}

// NewLogger returns a text logger on w. Verbose enables statement logging.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type envKey struct{}

// WithEnv stores env in ctx.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// ErrNoEnv is returned when a command runs without a loaded configuration.
var ErrNoEnv = errors.New("configuration not loaded")

// EnvFrom retrieves the Env stored by WithEnv.
func EnvFrom(ctx context.Context) (*Env, error) {
	if ctx == nil {
		return nil, ErrNoEnv
	}
	if env, ok := ctx.Value(envKey{}).(*Env); ok && env != nil {
		return env, nil
	}
	return nil, ErrNoEnv
}
