package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/spf13/cobra"
)

// NewConnectionsCommand creates the connections command.
func NewConnectionsCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conns"},
		Short:   "List configured connections",
		Long: `List the connections loaded from leaprow.yaml and LEAPROW_* variables.

Passwords are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			env, err := EnvFrom(cmd.Context())
			if err != nil {
				return err
			}
			return renderConnections(cmd.OutOrStdout(), env, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "Output format: table, json, csv, yaml")
	return cmd
}

var connectionColumns = []string{"name", "kind", "target", "default", "open"}

func renderConnections(w io.Writer, env *Env, format string) error {
	reg := env.Registry
	rows := make([]conn.Row, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		cfg, _ := reg.Config(name)
		rows = append(rows, conn.Row{
			"name":    name,
			"kind":    cfg.NormalizedKind(),
			"target":  describeTarget(cfg.Redacted()),
			"default": name == reg.DefaultName(),
			"open":    reg.Resolved(name),
		})
	}
	return renderRows(w, connectionColumns, rows, format)
}

// describeTarget summarises where a bundle points: a file path, or
// user@host:port/database for network databases.
func describeTarget(cfg core.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	target := cfg.Host
	if cfg.Port != 0 {
		target += ":" + strconv.Itoa(cfg.Port)
	}
	if cfg.Username != "" {
		target = cfg.Username + "@" + target
	}
	if cfg.Database != "" {
		target = fmt.Sprintf("%s/%s", target, cfg.Database)
	}
	return target
}
