package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaprow/pkg/adapter"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display leaprow version and the registered database drivers.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "leaprow v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Drivers: %s\n", strings.Join(adapter.ListAdapters(), ", "))
		},
	}
}
