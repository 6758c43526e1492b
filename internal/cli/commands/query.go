package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
	Limit  int
	Offset int
	Args   []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a statement against a connection",
		Long: `Run a SQL statement against a configured connection.

Statements that return rows are rendered in the chosen format; other
statements report the number of affected rows. Values passed with --arg
are bound to ? placeholders in order.

When invoked without SQL on a terminal, enters interactive REPL mode.`,
		Example: `  # Query the default connection
  leaprow query "SELECT * FROM blog"

  # Bind arguments and page through results
  leaprow query "SELECT * FROM blog WHERE tag = ?" --arg go --limit 10

  # Use another connection and output JSON
  leaprow query -c replica "SELECT count(*) FROM blog" --format json

  # Interactive mode
  leaprow query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatTable, "Output format: table, json, csv, yaml")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum rows to return (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip, used with --limit")
	cmd.Flags().StringArrayVarP(&opts.Args, "arg", "a", nil, "Positional argument for a ? placeholder (repeatable)")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return formats, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	env, err := EnvFrom(cmd.Context())
	if err != nil {
		return err
	}

	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		return runQueryREPL(cmd, env, opts)
	}

	c, err := env.Registry.Resolve(cmd.Context(), "")
	if err != nil {
		return err
	}
	return executeAndRender(cmd.Context(), cmd.OutOrStdout(), c, sqlQuery, opts)
}

// executeAndRender runs one statement. Row-returning statements are rendered;
// anything else reports the affected row count.
func executeAndRender(ctx context.Context, w io.Writer, c *conn.Connection, sqlQuery string, opts *QueryOptions) error {
	sqlQuery = strings.TrimSuffix(strings.TrimSpace(sqlQuery), ";")
	if sqlQuery == "" {
		return fmt.Errorf("empty statement")
	}

	args := make([]any, len(opts.Args))
	for i, a := range opts.Args {
		args[i] = a
	}

	if !returnsRows(sqlQuery) {
		n, err := c.Execute(ctx, sqlQuery, args...)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "(%d rows affected)\n", n)
		return nil
	}

	var page conn.Paginator
	if opts.Limit > 0 {
		page = conn.Limit{Count: opts.Limit, Offset: opts.Offset}
	}
	rs, err := c.Select(ctx, sqlQuery, page, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rs.Close() }()

	return renderResultSet(w, rs, opts.Format)
}

var rowKeywords = map[string]bool{
	"select":   true,
	"with":     true,
	"values":   true,
	"pragma":   true,
	"show":     true,
	"explain":  true,
	"describe": true,
	"table":    true,
}

// returnsRows reports whether the statement's leading keyword produces a result set.
func returnsRows(sqlQuery string) bool {
	s := strings.TrimLeft(sqlQuery, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end >= 0 {
		s = s[:end]
	}
	return rowKeywords[strings.ToLower(s)]
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
