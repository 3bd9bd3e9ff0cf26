// Package adapter provides the backend adapter contract and the dispatcher that
// routes each query to the adapter for its engine kind.
//
// Concrete adapters are in pkg/adapters/ subdirectories.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Adapter executes a query against one engine family and returns its rows in
// normalized form.
type Adapter interface {
	// Kind returns the engine kind this adapter serves.
	Kind() core.EngineKind

	// Run executes sql against conn. It returns all rows, or an error and no rows.
	// Cancelling ctx must abort the in-flight request.
	Run(ctx context.Context, sql string, conn core.ConnectionDescriptor) ([]core.NormalizedRow, error)
}

// Func adapts a function to the Adapter interface.
type Func struct {
	Engine core.EngineKind
	Fn     func(ctx context.Context, sql string, conn core.ConnectionDescriptor) ([]core.NormalizedRow, error)
}

// Kind returns the configured engine kind.
func (f Func) Kind() core.EngineKind { return f.Engine }

// Run calls the wrapped function.
func (f Func) Run(ctx context.Context, sql string, conn core.ConnectionDescriptor) ([]core.NormalizedRow, error) {
	return f.Fn(ctx, sql, conn)
}
