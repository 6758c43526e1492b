package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// NewPingCommand creates the ping command.
func NewPingCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ping [name...]",
		Short: "Open connections and check they respond",
		Long: `Resolve each named connection and ping the database.

Without arguments the default connection is pinged; --all pings every
configured connection. The command fails if any ping fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := EnvFrom(cmd.Context())
			if err != nil {
				return err
			}

			names := args
			switch {
			case all:
				names = env.Registry.Names()
			case len(names) == 0:
				names = []string{env.Registry.DefaultName()}
			}

			// Colours only when the output is a terminal.
			r := lipgloss.NewRenderer(cmd.OutOrStdout())
			okStyle := r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
			failStyle := r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

			var errs []error
			for _, name := range names {
				start := time.Now()
				c, err := env.Registry.Resolve(cmd.Context(), name)
				if err == nil {
					err = c.Ping(cmd.Context())
				}
				if err != nil {
					env.Logger.Debug("ping failed", slog.String("conn", name), slog.String("error", err.Error()))
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %v\n", name, failStyle.Render("FAIL"), err)
					errs = append(errs, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s, %s)\n", name, okStyle.Render("ok"), c.Dialect().Name, time.Since(start).Round(time.Microsecond))
			}

			if len(errs) > 0 {
				return fmt.Errorf("%d of %d connections failed: %w", len(errs), len(names), errors.Join(errs...))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Ping every configured connection")
	return cmd
}
