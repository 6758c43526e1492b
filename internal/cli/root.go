// Package cli provides the command-line interface for leaprow.
package cli

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/leaprow/internal/cli/commands"
	"github.com/leapstack-labs/leaprow/internal/config"
	"github.com/spf13/cobra"

	// Database drivers available to configured connections.
	_ "github.com/leapstack-labs/leaprow/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leaprow/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/leaprow/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leaprow/pkg/adapters/sqlite"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// skipEnv lists commands that run without loading configuration.
var skipEnv = map[string]bool{
	"help":                    true,
	"completion":              true,
	"version":                 true,
	cobra.ShellCompRequestCmd: true,
}

// run holds the Env built before a subcommand runs, so its connections can
// be closed once the command returns.
type run struct {
	env *commands.Env
}

func (r *run) close() error { return r.env.Close() }

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *run) {
	var (
		cfgFile string
		verbose bool
	)
	state := &run{}

	rootCmd := &cobra.Command{
		Use:   "leaprow",
		Short: "leaprow - named database connections from the command line",
		Long: `leaprow opens the connections configured in leaprow.yaml and runs
statements against them through the same registry applications use.

Connections are read from leaprow.yaml (or leaprow.yml) in the current
directory or its parents, then overridden by LEAPROW_* environment
variables, e.g. LEAPROW_CONNECTIONS__MAIN__PATH=app.db.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipEnv[cmd.Name()] {
				return nil
			}

			cfg, err := config.Load(config.Options{File: cfgFile, Flags: cmd.Root().PersistentFlags()})
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid connection configuration: %w", err)
			}

			logger := commands.NewLogger(cmd.ErrOrStderr(), verbose)
			if cfg.File != "" {
				logger.Debug("using config file", "path", cfg.File)
			}

			state.env = commands.NewEnv(cfg, logger)
			cmd.SetContext(commands.WithEnv(cmd.Context(), state.env))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (%s, %s)\n", GitCommit, BuildDate))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leaprow.yaml)")
	rootCmd.PersistentFlags().StringP("conn", "c", "", "Connection to use instead of the configured default")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log statements and connection events to stderr")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewConnectionsCommand())
	rootCmd.AddCommand(commands.NewPingCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())

	return rootCmd, state
}

// Execute runs the root command.
func Execute() error {
	rootCmd, state := newRootCmd()
	err := rootCmd.Execute()
	if cerr := state.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
