package query

import "github.com/leapstack-labs/leapquery/pkg/core"

// Sink receives the outcome of a query through callbacks.
// At most one of OnRows or OnError is invoked; an aborted query invokes neither.
type Sink struct {
	OnRows  func(rows []core.NormalizedRow)
	OnError func(err error)
}

// Deliver wires the sink to q.
func (s Sink) Deliver(q *Query) {
	q.OnSettle(func(state State, res Result) {
		switch state {
		case StateCompleted:
			if s.OnRows != nil {
				s.OnRows(res.Rows)
			}
		case StateFailed:
			if s.OnError != nil {
				s.OnError(res.Err)
			}
		}
	})
}
