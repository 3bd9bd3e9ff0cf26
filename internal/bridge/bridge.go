// Package bridge provides the relational execution bridge: an executor that
// runs SQL against PostgreSQL and answers with [name, tag, value] triplets,
// plus an HTTP server and client that carry the same contract across a
// process boundary.
//
// A bridge session has no query identifiers. It tracks at most one active
// query, and CancelQuery targets whatever is running at the time.
package bridge

import (
	"errors"

	"github.com/leapstack-labs/leapquery/pkg/adapters/relational"
)

var (
	// ErrBridgeBusy is returned when a query is submitted while another one
	// is still running in the same session.
	ErrBridgeBusy = errors.New("bridge session already has a running query")

	// ErrQueryCancelled is returned by ExecuteQuery when the query was
	// stopped by CancelQuery.
	ErrQueryCancelled = errors.New("query was cancelled")
)

// Ensure implementations satisfy the relational bridge contract
var (
	_ relational.Bridge = (*Local)(nil)
	_ relational.Bridge = (*Client)(nil)
)
