package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/config"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// pingSQL is the statement used to test a connection.
const pingSQL = "SELECT 1"

// NewConnectionsCommand creates the connections command.
func NewConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "List and test configured connections",
	}
	cmd.AddCommand(newConnectionsListCommand())
	cmd.AddCommand(newConnectionsTestCommand())
	return cmd
}

func newConnectionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd, "")
			if err != nil {
				return err
			}
			return renderConnections(cmdCtx.Renderer, cmdCtx.Cfg, cmdCtx.Cfg.DefaultConnection)
		},
	}
}

func newConnectionsTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test [name]",
		Short: "Check that a connection answers " + pingSQL,
		Args:  cobra.MaximumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return config.GetConfig(cmd.Context()).ConnectionNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd, "")
			if err != nil {
				return err
			}

			var requested string
			if len(args) > 0 {
				requested = args[0]
			}
			name, conn, err := cmdCtx.Cfg.Connection(requested)
			if err != nil {
				return err
			}

			rt, err := NewRuntime(cmd.Context(), cmdCtx.Cfg, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			start := time.Now()
			if _, err := rt.Execute(cmd.Context(), cmdCtx.Renderer, name, conn, pingSQL); err != nil {
				return fmt.Errorf("connection %s failed: %w", name, err)
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Connection %s OK (%s)", name, time.Since(start).Round(time.Millisecond)))
			return nil
		},
	}
}

// renderConnections lists connections as rows; active marks the selected one.
// Passwords are never shown.
func renderConnections(r *output.Renderer, cfg *config.Config, active string) error {
	rows := make([]core.NormalizedRow, 0, len(cfg.Connections))
	for _, name := range cfg.ConnectionNames() {
		conn := cfg.Connections[name]
		desc, _ := conn.Descriptor()

		row := core.NewNormalizedRow(7)
		row.Set("name", core.String(name))
		row.Set("engine", core.String(conn.Engine))
		row.Set("kind", core.String(desc.Engine.String()))
		row.Set("host", optionalString(conn.Host))
		if conn.Port != 0 {
			row.Set("port", core.Number(float64(conn.Port)))
		} else {
			row.Set("port", core.Null())
		}
		row.Set("database", optionalString(conn.Database))
		row.Set("active", core.Bool(name == active))
		rows = append(rows, row)
	}
	return r.RenderRows(rows)
}

func optionalString(s string) core.Value {
	if s == "" {
		return core.Null()
	}
	return core.String(s)
}
