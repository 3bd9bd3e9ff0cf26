package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneRow() []core.NormalizedRow {
	row := core.NewNormalizedRow(1)
	row.Set("id", core.Number(1))
	return []core.NormalizedRow{row}
}

func waitSettled(t *testing.T, q *Query) {
	t.Helper()
	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("query did not settle")
	}
}

func TestStart_Completed(t *testing.T) {
	q := Start(context.Background(), func(context.Context) ([]core.NormalizedRow, error) {
		return oneRow(), nil
	})

	rows, err := q.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StateCompleted, q.State())
	assert.NotEmpty(t, q.ID())

	res, ok := q.Result()
	require.True(t, ok)
	assert.Len(t, res.Rows, 1)
}

func TestStart_Failed(t *testing.T) {
	q := Start(context.Background(), func(context.Context) ([]core.NormalizedRow, error) {
		return nil, assert.AnError
	})

	_, err := q.Wait(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StateFailed, q.State())
}

func TestStart_AbortWhileRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{})

	q := Start(ctx, func(context.Context) ([]core.NormalizedRow, error) {
		close(started)
		<-release
		// A late result from the backend must be dropped.
		return oneRow(), nil
	})

	<-started
	cancel()
	waitSettled(t, q)
	close(release)

	_, err := q.Wait(context.Background())
	require.ErrorIs(t, err, core.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, q.State())

	// Give the late result a chance to arrive; the state must not change.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateAborted, q.State())
}

func TestStart_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called atomic.Bool
	q := Start(ctx, func(context.Context) ([]core.NormalizedRow, error) {
		called.Store(true)
		return oneRow(), nil
	})

	waitSettled(t, q)
	assert.Equal(t, StateAborted, q.State())
	assert.False(t, called.Load(), "run function must not be called for a fired token")
}

func TestStart_ErrorAfterCancelIsAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	q := Start(ctx, func(ctx context.Context) ([]core.NormalizedRow, error) {
		close(started)
		<-ctx.Done()
		return nil, errors.New("canceling statement due to user request")
	})

	<-started
	cancel()
	waitSettled(t, q)
	assert.Equal(t, StateAborted, q.State())
}

func TestStart_CancelAfterCompletionIsNoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := Start(ctx, func(context.Context) ([]core.NormalizedRow, error) {
		return oneRow(), nil
	})
	waitSettled(t, q)

	cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, StateCompleted, q.State())
	rows, err := q.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWait_ContextDone(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	q := Start(context.Background(), func(context.Context) ([]core.NormalizedRow, error) {
		<-release
		return nil, nil
	})

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Wait(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, q.State())
	_, ok := q.Result()
	assert.False(t, ok)
}

func TestOnSettle_AfterSettled(t *testing.T) {
	q := Start(context.Background(), func(context.Context) ([]core.NormalizedRow, error) {
		return nil, nil
	})
	waitSettled(t, q)

	var got State
	q.OnSettle(func(s State, _ Result) { got = s })
	assert.Equal(t, StateCompleted, got)
	assert.GreaterOrEqual(t, q.Duration(), time.Duration(0))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateAborted.Terminal())
}
