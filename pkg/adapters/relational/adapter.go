// Package relational provides the adapter for relational engines reached
// through an execution bridge.
//
// The adapter never talks to the database itself. It hands a connection string
// and the SQL text to the bridge, and issues an out-of-band cancel request when
// the query's context is cancelled.
package relational

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/normalize"
)

// Bridge is the request/response/cancel contract of the execution bridge.
type Bridge interface {
	// ExecuteQuery runs query and returns the serialized rows: a JSON array of
	// rows, each an array of [name, tag, value] string triplets.
	ExecuteQuery(ctx context.Context, connString, query string) ([]byte, error)

	// CancelQuery cancels whatever query is active in the bridge session.
	// It is idempotent and a no-op when nothing is running.
	CancelQuery(ctx context.Context) error
}

// Adapter implements adapter.Adapter for bridge-backed relational engines.
type Adapter struct {
	bridge Bridge
	logger *slog.Logger
}

// New creates a new relational adapter over bridge.
// If logger is nil, a discard logger is used.
func New(bridge Bridge, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{bridge: bridge, logger: logger}
}

// Kind returns core.EngineRelational.
func (a *Adapter) Kind() core.EngineKind {
	return core.EngineRelational
}

// Run executes sql through the bridge and normalizes the response.
func (a *Adapter) Run(ctx context.Context, sql string, conn core.ConnectionDescriptor) ([]core.NormalizedRow, error) {
	if a.bridge == nil {
		return nil, fmt.Errorf("relational bridge not configured")
	}

	connString := ConnectionString(conn)

	// The cancel request is independent of the execute request. It may arrive
	// after the bridge already answered; that race is benign.
	stop := context.AfterFunc(ctx, func() {
		if err := a.bridge.CancelQuery(context.WithoutCancel(ctx)); err != nil {
			a.logger.Debug("bridge cancel request failed", slog.String("error", err.Error()))
		}
	})
	defer stop()

	a.logger.Debug("executing query via bridge", slog.String("host", conn.Host), slog.String("database", conn.Database))

	payload, err := a.bridge.ExecuteQuery(ctx, connString, sql)
	if err != nil {
		return nil, fmt.Errorf("relational query failed: %w", err)
	}

	raw, err := normalize.DecodeBridgeResponse(payload)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("relational query finished", slog.Int("rows", len(raw)))
	return normalize.Normalize(raw), nil
}

// ConnectionString builds a postgres:// URL from a descriptor.
// Credentials are URL-escaped.
func ConnectionString(conn core.ConnectionDescriptor) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		Path:   "/" + conn.Database,
	}
	if conn.Username != "" || conn.Password != "" {
		u.User = url.UserPassword(conn.Username, conn.Password)
	}
	return u.String()
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
