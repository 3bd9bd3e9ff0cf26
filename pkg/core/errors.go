package core

import (
	"context"
	"errors"
)

// ErrAborted is the settled error of a query whose cancellation token fired
// while it was running. It matches context.Canceled via errors.Is.
var ErrAborted = abortedError{}

type abortedError struct{}

func (abortedError) Error() string { return "query aborted" }

func (abortedError) Is(target error) bool {
	return target == context.Canceled
}

// IsAborted reports whether err represents a cancelled query.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
