package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = "leaprow> "
	replContPrompt = "    ...> "
)

// replSession is the mutable state of one REPL run.
type replSession struct {
	env    *Env
	conn   string // empty means the registry default
	opts   QueryOptions
	out    io.Writer
	errOut io.Writer
}

func runQueryREPL(cmd *cobra.Command, env *Env, opts *QueryOptions) error {
	ctx := cmd.Context()
	s := &replSession{
		env:    env,
		opts:   *opts,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyPath(),
		AutoComplete:    newREPLCompleter(env.Cfg.Names()),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(s.out, "leaprow REPL (connection: %s)\n", s.connName())
	_, _ = fmt.Fprintln(s.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(s.out)

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := s.handleDotCommand(ctx, line); quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		query := buf.String()
		buf.Reset()
		s.run(ctx, query)
		_, _ = fmt.Fprintln(s.out)
	}

	return nil
}

func (s *replSession) connName() string {
	if s.conn != "" {
		return s.conn
	}
	return s.env.Registry.DefaultName()
}

// run executes one statement, reporting failures without ending the session.
func (s *replSession) run(ctx context.Context, query string) {
	c, err := s.env.Registry.Resolve(ctx, s.conn)
	if err == nil {
		err = executeAndRender(ctx, s.out, c, query, &s.opts)
	}
	if err != nil {
		_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
}

// handleDotCommand runs a REPL command and reports whether the session should end.
func (s *replSession) handleDotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.out)

	case ".conns":
		if err := renderConnections(s.out, s.env, s.opts.Format); err != nil {
			_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}

	case ".use":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(s.out, "Using %s\n", s.connName())
			return false
		}
		if _, err := s.env.Registry.Resolve(ctx, parts[1]); err != nil {
			_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
			return false
		}
		s.conn = parts[1]
		_, _ = fmt.Fprintf(s.out, "Using %s\n", s.conn)

	case ".format":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(s.out, "Format is %s\n", s.opts.Format)
			return false
		}
		if err := validateFormat(parts[1]); err != nil {
			_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
			return false
		}
		s.opts.Format = parts[1]

	case ".clear":
		_, _ = fmt.Fprint(s.out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help            Show this help message
  .conns           List configured connections
  .use [name]      Switch to another connection
  .format [name]   Set the output format (table, json, csv, yaml)
  .clear           Clear the screen
  .quit / .exit    Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for commands and connection names
`
	_, _ = fmt.Fprintln(w, help)
}

func newREPLCompleter(names []string) *readline.PrefixCompleter {
	conns := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		conns[i] = readline.PcItem(name)
	}
	fmts := make([]readline.PrefixCompleterInterface, len(formats))
	for i, f := range formats {
		fmts[i] = readline.PcItem(f)
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".conns"),
		readline.PcItem(".use", conns...),
		readline.PcItem(".format", fmts...),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

// historyPath returns the REPL history file, or "" to disable history.
func historyPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "leaprow")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ""
	}
	return filepath.Join(dir, "query_history")
}
