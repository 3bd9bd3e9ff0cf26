// Package query coordinates the lifecycle of a single in-flight query.
//
// A Query moves from Running to exactly one of Completed, Failed or Aborted.
// The first transition wins; results that arrive after the query settled are
// discarded, so callers see at most one delivery.
package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// State is the lifecycle state of a query.
type State int32

// Query states. Every state except StateRunning is terminal.
const (
	StateRunning State = iota
	StateCompleted
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool { return s != StateRunning }

// RunFunc executes a query and returns all of its rows, or an error.
type RunFunc func(ctx context.Context) ([]core.NormalizedRow, error)

// Result is the settled outcome of a query.
type Result struct {
	Rows []core.NormalizedRow
	Err  error
}

// Query is a handle to one in-flight query. It settles exactly once.
type Query struct {
	id      string
	started time.Time

	state    atomic.Int32
	done     chan struct{}
	result   Result
	finished time.Time

	mu       sync.Mutex
	settlers []func(State, Result)
}

// Start runs fn on its own goroutine and returns immediately.
//
// ctx is the cancellation token. If it fires while the query is running the
// query settles as StateAborted and whatever fn returns later is dropped.
// A token that has already fired aborts the query without calling fn.
func Start(ctx context.Context, fn RunFunc) *Query {
	q := &Query{
		id:      uuid.NewString(),
		started: time.Now(),
		done:    make(chan struct{}),
	}

	if ctx.Err() != nil {
		q.settle(StateAborted, Result{Err: core.ErrAborted})
		return q
	}

	stop := context.AfterFunc(ctx, func() {
		q.settle(StateAborted, Result{Err: core.ErrAborted})
	})

	go func() {
		rows, err := fn(ctx)
		stop()

		// The token fired before the result was observed.
		if ctx.Err() != nil {
			q.settle(StateAborted, Result{Err: core.ErrAborted})
			return
		}
		if err != nil {
			q.settle(StateFailed, Result{Err: err})
			return
		}
		q.settle(StateCompleted, Result{Rows: rows})
	}()

	return q
}

// OnSettle registers fn to run once the query reaches a terminal state.
// If the query already settled, fn runs immediately on the calling goroutine.
func (q *Query) OnSettle(fn func(State, Result)) {
	q.mu.Lock()
	if !q.State().Terminal() {
		q.settlers = append(q.settlers, fn)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	fn(q.State(), q.result)
}

func (q *Query) settle(to State, res Result) bool {
	q.mu.Lock()
	if !q.state.CompareAndSwap(int32(StateRunning), int32(to)) {
		q.mu.Unlock()
		return false
	}
	q.result = res
	q.finished = time.Now()
	settlers := q.settlers
	q.settlers = nil
	close(q.done)
	q.mu.Unlock()

	for _, fn := range settlers {
		fn(to, res)
	}
	return true
}

// ID returns the unique identifier of the query.
func (q *Query) ID() string { return q.id }

// State returns the current state.
func (q *Query) State() State { return State(q.state.Load()) }

// Done is closed when the query settles.
func (q *Query) Done() <-chan struct{} { return q.done }

// Duration returns how long the query ran, or has been running so far.
func (q *Query) Duration() time.Duration {
	select {
	case <-q.done:
		return q.finished.Sub(q.started)
	default:
		return time.Since(q.started)
	}
}

// StartedAt returns when the query was submitted.
func (q *Query) StartedAt() time.Time { return q.started }

// Result returns the settled result. ok is false while the query is running.
func (q *Query) Result() (res Result, ok bool) {
	select {
	case <-q.done:
		return q.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the query settles or ctx is done.
// An aborted query returns core.ErrAborted.
func (q *Query) Wait(ctx context.Context) ([]core.NormalizedRow, error) {
	select {
	case <-q.done:
		return q.result.Rows, q.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
