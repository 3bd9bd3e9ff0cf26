package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/query"
)

// Dispatcher routes queries to the adapter matching the connection's engine kind.
// It never retries and never falls back to the other backend.
type Dispatcher struct {
	columnar   Adapter
	relational Adapter
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher with one adapter per engine kind.
// If logger is nil, a discard logger is used.
func NewDispatcher(columnar, relational Adapter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		columnar:   columnar,
		relational: relational,
		logger:     logger,
	}
}

// AdapterFor returns the adapter serving kind. Kinds outside the known set are
// served by the relational adapter.
func (d *Dispatcher) AdapterFor(kind core.EngineKind) Adapter {
	switch kind {
	case core.EngineColumnar:
		return d.columnar
	case core.EngineRelational:
		return d.relational
	default:
		d.logger.Warn("unknown engine kind, using relational adapter", slog.Int("kind", int(kind)))
		return d.relational
	}
}

// Submit starts req on the matching adapter and returns immediately.
// ctx is the cancellation token for the query.
func (d *Dispatcher) Submit(ctx context.Context, req core.QueryRequest) *query.Query {
	adp := d.AdapterFor(req.Connection.Engine)
	kind := req.Connection.Engine

	return query.Start(ctx, func(ctx context.Context) (rows []core.NormalizedRow, err error) {
		if adp == nil {
			return nil, fmt.Errorf("no adapter configured for %s engine", kind)
		}

		defer func() {
			if r := recover(); r != nil {
				rows, err = nil, fmt.Errorf("%s adapter panicked: %v", kind, r)
			}
		}()

		d.logger.Debug("dispatching query",
			slog.String("engine", kind.String()),
			slog.String("connection", req.Name),
			slog.String("host", req.Connection.Host))

		return adp.Run(ctx, req.SQL, req.Connection)
	})
}

// Route starts req and delivers its outcome to onRows or onError.
// At most one callback fires; a cancelled query fires neither.
func (d *Dispatcher) Route(ctx context.Context, req core.QueryRequest, onRows func([]core.NormalizedRow), onError func(error)) *query.Query {
	q := d.Submit(ctx, req)
	query.Sink{OnRows: onRows, OnError: onError}.Deliver(q)
	return q
}
