package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// defaultDrainTimeout bounds how long a new query waits for a cancelled one
// to release the session.
const defaultDrainTimeout = 10 * time.Second

// Local executes queries in-process with pgx. Every query opens its own
// connection, which is closed when the query ends.
//
// A query submitted while the previous one is still winding down after a
// cancel waits for it; one submitted while another is running normally is
// rejected with ErrBridgeBusy.
type Local struct {
	logger       *slog.Logger
	drainTimeout time.Duration

	mu     sync.Mutex
	active *activeQuery
}

type activeQuery struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// draining reports whether the query has been told to stop. Callers hold l.mu.
func (aq *activeQuery) draining() bool {
	return aq.cancelled || aq.ctx.Err() != nil
}

// NewLocal creates an in-process bridge.
// If logger is nil, a discard logger is used.
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Local{logger: logger, drainTimeout: defaultDrainTimeout}
}

// ExecuteQuery connects using connString, runs query and returns the
// serialized rows.
func (l *Local) ExecuteQuery(ctx context.Context, connString, query string) ([]byte, error) {
	qctx, aq, err := l.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer l.end(aq)

	rows, err := l.run(qctx, connString, query)
	if err != nil {
		if l.wasCancelled(aq) {
			return nil, ErrQueryCancelled
		}
		return nil, err
	}
	if l.wasCancelled(aq) {
		return nil, ErrQueryCancelled
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}
	return payload, nil
}

// CancelQuery stops the active query. It is a no-op when nothing is running.
func (l *Local) CancelQuery(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == nil {
		l.logger.Debug("cancel requested with no active query")
		return nil
	}
	l.active.cancelled = true
	l.active.cancel()
	return nil
}

// Running reports whether a query is active.
func (l *Local) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

func (l *Local) begin(ctx context.Context) (context.Context, *activeQuery, error) {
	var timeout <-chan time.Time
	for {
		l.mu.Lock()
		prev := l.active
		if prev == nil {
			qctx, cancel := context.WithCancel(ctx)
			l.active = &activeQuery{ctx: qctx, cancel: cancel, done: make(chan struct{})}
			aq := l.active
			l.mu.Unlock()
			return qctx, aq, nil
		}
		draining := prev.draining()
		l.mu.Unlock()

		if !draining {
			return nil, nil, ErrBridgeBusy
		}
		if timeout == nil {
			l.logger.Debug("waiting for cancelled query to finish")
			timer := time.NewTimer(l.drainTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-timeout:
			return nil, nil, ErrBridgeBusy
		}
	}
}

func (l *Local) end(aq *activeQuery) {
	l.mu.Lock()
	defer l.mu.Unlock()

	aq.cancel()
	if l.active == aq {
		l.active = nil
	}
	close(aq.done)
}

func (l *Local) wasCancelled(aq *activeQuery) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return aq.cancelled
}

func (l *Local) run(ctx context.Context, connString, query string) ([]core.RawRelationalRow, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	// Simple protocol returns every column as text, which is what the
	// triplet encoding carries.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	l.logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	results := make([]core.RawRelationalRow, 0)
	for rows.Next() {
		fields := rows.FieldDescriptions()
		values, verr := rows.Values()
		if verr != nil {
			l.logger.Debug("falling back to raw column text", slog.String("error", verr.Error()))
			values = nil
		}
		raw := rows.RawValues()

		row := make(core.RawRelationalRow, len(fields))
		for i, fd := range fields {
			var decoded any
			if values != nil {
				decoded = values[i]
			}
			row[i] = EncodeColumn(fd.Name, fd.DataTypeOID, decoded, raw[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return results, nil
}
