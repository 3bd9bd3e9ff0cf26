package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Connection string
	Format     string
	Input      string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run SQL against a configured connection",
		Long: `Run a SQL statement against one of the connections in leapquery.yaml.

The statement is sent unchanged to the connection's engine: ClickHouse or an
embedded DuckDB database for columnar connections, PostgreSQL through the
bridge for relational ones. Results are normalized into one row format and
rendered as a table, JSON, CSV, markdown or YAML.

SQL is read from the arguments, from --input, or from piped stdin. When run
on a terminal without SQL, an interactive REPL starts.

Press Ctrl-C while a query runs to cancel it.`,
		Example: `  # Run a statement on the default connection
  leapquery query "SELECT count() FROM events"

  # Pick a connection and output format
  leapquery query -c warehouse -f json "SELECT * FROM orders LIMIT 10"

  # Read SQL from a file or stdin
  leapquery query --input report.sql
  cat report.sql | leapquery query -c warehouse

  # Interactive mode
  leapquery query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Connection, "connection", "c", "", "Connection name (default: default_connection)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, md, yaml (default: output setting)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx, err := NewCommandContext(cmd, opts.Format)
	if err != nil {
		return err
	}

	var sql string
	switch {
	case len(args) > 0:
		sql = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sql = string(content)
	case !isTerminal(cmd.InOrStdin()):
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sql = string(content)
	default:
		return runQueryREPL(cmd, cmdCtx, opts)
	}

	sql = trimStatement(sql)
	if sql == "" {
		return errors.New("no SQL statement given")
	}

	name, conn, err := cmdCtx.Cfg.Connection(opts.Connection)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rt, err := NewRuntime(ctx, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rows, err := rt.Execute(ctx, cmdCtx.Renderer, name, conn, sql)
	if err != nil {
		if errors.Is(err, core.ErrAborted) {
			cmdCtx.Renderer.Warning("Query cancelled")
		}
		return err
	}
	return cmdCtx.Renderer.RenderRows(rows)
}

// trimStatement drops surrounding whitespace and trailing semicolons.
func trimStatement(sql string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), ";"))
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
