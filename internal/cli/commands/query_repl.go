package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/config"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/history"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// replSession is the state of one interactive session. The config is
// swapped when leapquery.yaml changes on disk.
type replSession struct {
	rt  *Runtime
	r   *output.Renderer
	out io.Writer
	err io.Writer

	mu         sync.Mutex
	cfg        *config.Config
	connection string
}

func (s *replSession) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *replSession) setConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if _, ok := cfg.Connections[s.connection]; !ok {
		s.connection = ""
	}
}

// current resolves the active connection.
func (s *replSession) current() (string, config.ConnectionConfig, error) {
	s.mu.Lock()
	name, cfg := s.connection, s.cfg
	s.mu.Unlock()
	return cfg.Connection(name)
}

func (s *replSession) prompt() string {
	name, _, err := s.current()
	if err != nil {
		return "leapquery> "
	}
	return name + "> "
}

func runQueryREPL(cmd *cobra.Command, cmdCtx *CommandContext, opts *QueryOptions) error {
	ctx := cmd.Context()

	rt, err := NewRuntime(ctx, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	rt.NoSpinner = true

	s := &replSession{
		rt:         rt,
		r:          cmdCtx.Renderer,
		out:        cmd.OutOrStdout(),
		err:        cmd.ErrOrStderr(),
		cfg:        cmdCtx.Cfg,
		connection: opts.Connection,
	}
	if opts.Connection != "" {
		if _, _, err := s.current(); err != nil {
			return err
		}
	}

	if path := config.GetConfigFileUsed(); path != "" {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		if err := config.Watch(watchCtx, path, cmdCtx.Logger, func() { s.reload(path) }); err != nil {
			cmdCtx.Logger.Debug("config watch disabled", slog.String("error", err.Error()))
		}
	}

	historyFile := filepath.Join(filepath.Dir(cmdCtx.Cfg.History.Path), "repl_history")
	if err := os.MkdirAll(filepath.Dir(historyFile), 0750); err != nil {
		historyFile = ""
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     historyFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          s.out,
		Stderr:          s.err,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(s.out, "leapquery REPL")
	_, _ = fmt.Fprintln(s.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(s.out)

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(s.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := s.dotCommand(ctx, line); quit {
				break
			}
			rl.SetPrompt(s.prompt())
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString("\n")
			rl.SetPrompt("    ...> ")
			continue
		}
		rl.SetPrompt(s.prompt())

		sql := trimStatement(buf.String())
		buf.Reset()
		if sql == "" {
			continue
		}
		s.run(ctx, sql)
		_, _ = fmt.Fprintln(s.out)
	}

	return nil
}

// run executes one statement. Ctrl-C cancels the statement, not the session.
func (s *replSession) run(ctx context.Context, sql string) {
	name, conn, err := s.current()
	if err != nil {
		s.r.Error(err)
		return
	}

	qctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	rows, err := s.rt.Execute(qctx, s.r, name, conn, sql)
	switch {
	case errors.Is(err, core.ErrAborted):
		s.r.Warning("Query cancelled")
	case err != nil:
		s.r.Error(err)
	default:
		if err := s.r.RenderRows(rows); err != nil {
			s.r.Error(err)
		}
	}
}

func (s *replSession) reload(path string) {
	cfg, err := config.LoadConfig(path, nil)
	if err != nil {
		s.r.Warning(fmt.Sprintf("Config not reloaded: %v", err))
		return
	}
	// Flags given at startup still apply to the session.
	old := s.config()
	cfg.History = old.History
	cfg.Bridge = old.Bridge
	s.setConfig(cfg)
	s.r.Muted("Configuration reloaded")
}

// dotCommand handles a REPL command and reports whether the session should end.
func (s *replSession) dotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.out)

	case ".connections":
		active, _, _ := s.current()
		if err := renderConnections(s.r, s.config(), active); err != nil {
			s.r.Error(err)
		}

	case ".use":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(s.err, "Usage: .use <connection>")
			return false
		}
		cfg := s.config()
		if _, _, err := cfg.Connection(parts[1]); err != nil {
			s.r.Error(err)
			return false
		}
		s.mu.Lock()
		s.connection = parts[1]
		s.mu.Unlock()

	case ".format":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(s.out, "Output format: %s\n", s.r.Mode())
			return false
		}
		mode, err := output.ParseMode(parts[1])
		if err != nil {
			s.r.Error(err)
			return false
		}
		s.r.SetMode(mode)

	case ".history":
		limit := 10
		if len(parts) > 1 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n <= 0 {
				_, _ = fmt.Fprintln(s.err, "Usage: .history [count]")
				return false
			}
			limit = n
		}
		if s.rt.History == nil {
			s.r.Warning("Query history is disabled")
			return false
		}
		entries, err := s.rt.History.List(ctx, history.Filter{Limit: limit})
		if err != nil {
			s.r.Error(err)
			return false
		}
		if err := s.r.RenderRows(historyRows(entries)); err != nil {
			s.r.Error(err)
		}

	case ".clear":
		_, _ = fmt.Fprint(s.out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(s.err, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .connections       List configured connections
  .use <name>        Switch the active connection
  .format [mode]     Show or set the output format (table, json, csv, md, yaml)
  .history [count]   Show recent queries
  .clear             Clear the screen
  .quit / .exit      Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Ctrl-C cancels the running query
  - Use arrow keys to navigate history
  - Edits to leapquery.yaml are picked up automatically
`
	_, _ = fmt.Fprintln(w, help)
}

// completer offers dot-commands, connection names after .use and output
// modes after .format.
func (s *replSession) completer() *readline.PrefixCompleter {
	var conns []readline.PrefixCompleterInterface
	for _, name := range s.config().ConnectionNames() {
		conns = append(conns, readline.PcItem(name))
	}
	var modes []readline.PrefixCompleterInterface
	for _, m := range output.Modes {
		modes = append(modes, readline.PcItem(m))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".connections"),
		readline.PcItem(".use", conns...),
		readline.PcItem(".format", modes...),
		readline.PcItem(".history"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
