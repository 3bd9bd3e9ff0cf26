package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/bridge"
)

// NewBridgeCommand creates the bridge command.
func NewBridgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run the relational query bridge",
	}
	cmd.AddCommand(newBridgeServeCommand())
	return cmd
}

func newBridgeServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relational bridge over HTTP",
		Long: `Serve the relational bridge over HTTP.

The bridge executes PostgreSQL queries for clients running with
bridge.mode: remote. It runs one query at a time; a second query while one
is running is rejected as busy. POST /v1/cancel cancels the running query.`,
		Example: `  leapquery bridge serve --addr 0.0.0.0:7878

  # On the client side
  leapquery query --bridge-mode remote --bridge-url http://bridge-host:7878 "SELECT 1"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd, "")
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cmdCtx.Cfg.Bridge.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := bridge.NewServer(bridge.ServerConfig{
				Bridge: bridge.NewLocal(cmdCtx.Logger),
				Addr:   addr,
				Logger: cmdCtx.Logger,
			})
			cmdCtx.Renderer.Muted("Bridge listening on " + addr)
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: bridge.addr)")
	return cmd
}
