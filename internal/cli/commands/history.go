package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/history"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the query history",
		Long: `Inspect queries recorded in the history database.

Every query run by leapquery is recorded with its connection, SQL, final
state (completed, failed or aborted), row count and timings.`,
	}
	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())
	return cmd
}

// openHistory opens the configured history store for a history subcommand.
func openHistory(cmd *cobra.Command) (*CommandContext, *history.Store, error) {
	cmdCtx, err := NewCommandContext(cmd, "")
	if err != nil {
		return nil, nil, err
	}
	if !cmdCtx.Cfg.History.Enabled {
		return nil, nil, errors.New("query history is disabled\nHint: Remove --no-history or set history.enabled in leapquery.yaml")
	}
	store, err := history.Open(cmd.Context(), cmdCtx.Cfg.History.Path, cmdCtx.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open query history: %w", err)
	}
	return cmdCtx, store, nil
}

func newHistoryListCommand() *cobra.Command {
	var filter history.Filter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent queries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return cmdCtx.Renderer.RenderRows(historyRows(entries))
		},
	}

	cmd.Flags().StringVarP(&filter.Connection, "connection", "c", "", "Only show queries on this connection")
	cmd.Flags().StringVar(&filter.State, "state", "", "Only show queries in this state (completed, failed, aborted)")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "Maximum number of queries")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			e, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.Mode() != output.ModeTable {
				return r.RenderRows(historyRows([]history.Entry{*e}))
			}
			renderEntry(r, e)
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			cmdCtx, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Pruned %d queries (kept %d)", n, keep))
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 100, "Number of most recent queries to keep")
	return cmd
}

func renderEntry(r *output.Renderer, e *history.Entry) {
	styles := r.Styles()
	titleCaser := cases.Title(language.English)

	state := titleCaser.String(e.State)
	switch e.State {
	case "completed":
		state = styles.Success.Render(state)
	case "failed":
		state = styles.Error.Render(state)
	case "aborted":
		state = styles.Warning.Render(state)
	}

	r.Println(styles.Header.Render("Query " + e.ID))
	r.Printf("  Connection: %s (%s)\n", e.Connection, e.Engine)
	r.Printf("  State:      %s\n", state)
	r.Printf("  Rows:       %d\n", e.Rows)
	r.Printf("  Started:    %s\n", e.StartedAt.Local().Format(time.DateTime))
	r.Printf("  Duration:   %s\n", e.Duration.Round(time.Millisecond))
	if e.Error != "" {
		r.Printf("  Error:      %s\n", e.Error)
	}
	r.Println("")
	r.Println(styles.Muted.Render(e.SQL))
}

// historyRows presents entries in the same row format as query results so
// every output mode applies.
func historyRows(entries []history.Entry) []core.NormalizedRow {
	rows := make([]core.NormalizedRow, 0, len(entries))
	for _, e := range entries {
		row := core.NewNormalizedRow(9)
		row.Set("id", core.String(e.ID))
		row.Set("started_at", core.String(e.StartedAt.UTC().Format(time.RFC3339)))
		row.Set("connection", core.String(e.Connection))
		row.Set("engine", core.String(e.Engine))
		row.Set("state", core.String(e.State))
		row.Set("rows", core.Number(float64(e.Rows)))
		row.Set("duration_ms", core.Number(float64(e.Duration.Milliseconds())))
		row.Set("error", optionalString(e.Error))
		row.Set("sql", core.String(e.SQL))
		rows = append(rows, row)
	}
	return rows
}
