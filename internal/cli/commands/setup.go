package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/leapquery/internal/bridge"
	"github.com/leapstack-labs/leapquery/internal/cli/config"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/history"
	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/adapters/columnar"
	"github.com/leapstack-labs/leapquery/pkg/adapters/relational"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/query"

	// Columnar clients register themselves by name.
	_ "github.com/leapstack-labs/leapquery/pkg/clients/clickhouse"
	_ "github.com/leapstack-labs/leapquery/pkg/clients/duckdb"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext reads the config and logger stored by the root command
// and builds a renderer. format overrides the configured output when set.
func NewCommandContext(cmd *cobra.Command, format string) (*CommandContext, error) {
	cfg := config.GetConfig(cmd.Context())
	if format == "" {
		format = cfg.OutputFormat
	}
	mode, err := output.ParseMode(format)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

// Runtime wires the dispatcher to its adapters and the optional history store.
type Runtime struct {
	Dispatcher *adapter.Dispatcher
	// History is nil when history is disabled.
	History *history.Store
	// NoSpinner keeps Execute from taking over the terminal. Set by the
	// REPL, whose line reader owns stdin.
	NoSpinner bool

	logger *slog.Logger
}

// NewRuntime builds the query runtime described by cfg.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	br, err := newBridge(cfg.Bridge, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Dispatcher: adapter.NewDispatcher(columnar.New(logger), relational.New(br, logger), logger),
		logger:     logger,
	}

	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open query history: %w", err)
		}
		rt.History = store
	}
	return rt, nil
}

func newBridge(cfg config.BridgeConfig, logger *slog.Logger) (relational.Bridge, error) {
	switch cfg.Mode {
	case "", config.BridgeModeLocal:
		return bridge.NewLocal(logger), nil
	case config.BridgeModeRemote:
		return bridge.NewClient(cfg.URL, nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown bridge mode %q", cfg.Mode)
	}
}

// Close releases the history store.
func (rt *Runtime) Close() error {
	if rt.History == nil {
		return nil
	}
	return rt.History.Close()
}

// Request builds the query request for a named connection, logging engine
// names that fall back to the relational engine.
func (rt *Runtime) Request(name string, conn config.ConnectionConfig, sql string) core.QueryRequest {
	desc, recognized := conn.Descriptor()
	if !recognized {
		rt.logger.Warn("unrecognized engine, using relational",
			slog.String("connection", name),
			slog.String("engine", conn.Engine))
	}
	return core.QueryRequest{SQL: sql, Connection: desc, Name: name}
}

// Record stores a settled query in the history, if enabled. Failures are
// logged and never fail the command.
func (rt *Runtime) Record(ctx context.Context, req core.QueryRequest, q *query.Query) {
	if rt.History == nil {
		return
	}
	if err := rt.History.RecordQuery(context.WithoutCancel(ctx), req, q); err != nil {
		rt.logger.Warn("failed to record query history",
			slog.String("id", q.ID()),
			slog.String("error", err.Error()))
	}
}

// Execute submits sql against the named connection, waits for it to settle
// and records it. An aborted query returns core.ErrAborted.
//
// When the renderer owns a terminal a spinner runs while the query is in
// flight; ctrl+c on the spinner cancels the query.
func (rt *Runtime) Execute(ctx context.Context, r *output.Renderer, name string, conn config.ConnectionConfig, sql string) ([]core.NormalizedRow, error) {
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := rt.Request(name, conn, sql)
	q := rt.Dispatcher.Submit(qctx, req)

	var spinner *output.Spinner
	if !rt.NoSpinner && r.IsTTY() && term.IsTerminal(int(os.Stdin.Fd())) {
		spinner = r.NewSpinner("Running query...").OnInterrupt(cancel)
		spinner.Start()
	}

	rows, err := q.Wait(context.WithoutCancel(ctx))
	if spinner != nil {
		spinner.Stop()
	}

	rt.logger.Debug("query settled",
		slog.String("id", q.ID()),
		slog.String("connection", name),
		slog.String("state", q.State().String()),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", q.Duration().Round(time.Millisecond)))

	rt.Record(ctx, req, q)
	return rows, err
}
