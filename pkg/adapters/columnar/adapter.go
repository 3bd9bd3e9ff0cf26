// Package columnar provides the adapter for streaming analytical engines that
// return self-describing rows (ClickHouse over HTTP, embedded DuckDB).
//
// Client implementations register themselves by name; import them with a
// blank identifier:
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/clients/clickhouse"
package columnar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/normalize"
)

// Adapter implements adapter.Adapter for columnar engines.
type Adapter struct {
	logger *slog.Logger

	// NewClient overrides the registry lookup. Used by tests.
	NewClient ClientFactory
}

// New creates a new columnar adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// Kind returns core.EngineColumnar.
func (a *Adapter) Kind() core.EngineKind {
	return core.EngineColumnar
}

// Run executes sql on a fresh client and returns all rows once the engine has
// finished. On error no rows are returned.
func (a *Adapter) Run(ctx context.Context, sql string, conn core.ConnectionDescriptor) ([]core.NormalizedRow, error) {
	target := BuildTarget(conn)

	factory, err := a.factoryFor(conn)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("opening columnar client", slog.String("url", target.URL), slog.String("database", target.Database))

	client, err := factory(target, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open columnar client: %w", err)
	}
	defer func() { _ = client.Close() }()

	records, err := client.Query(ctx, Request{Query: sql, Format: FormatJSONEachRow})
	if err != nil {
		return nil, fmt.Errorf("columnar query failed: %w", err)
	}

	a.logger.Debug("columnar query finished", slog.Int("rows", len(records)))
	return normalize.FromRecords(records), nil
}

func (a *Adapter) factoryFor(conn core.ConnectionDescriptor) (ClientFactory, error) {
	if a.NewClient != nil {
		return a.NewClient, nil
	}

	name := conn.Option("client")
	if name == "" {
		name = DefaultClient
	}
	factory, ok := Get(name)
	if !ok {
		return nil, &UnknownClientError{Name: name, Available: ListClients()}
	}
	return factory, nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
