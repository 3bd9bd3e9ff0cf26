package bridge

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// silentServer accepts connections and never answers, so a connect attempt
// blocks until its context ends.
func silentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	return "postgres://u:p@" + ln.Addr().String() + "/db?sslmode=disable&connect_timeout=10"
}

func TestLocal_CancelAndBusy(t *testing.T) {
	l := NewLocal(testutil.NewTestLogger(t))
	connString := silentServer(t)

	done := make(chan error, 1)
	go func() {
		_, err := l.ExecuteQuery(context.Background(), connString, "SELECT 1")
		done <- err
	}()

	require.Eventually(t, l.Running, 2*time.Second, 5*time.Millisecond)

	_, err := l.ExecuteQuery(context.Background(), connString, "SELECT 2")
	assert.ErrorIs(t, err, ErrBridgeBusy)

	require.NoError(t, l.CancelQuery(context.Background()))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueryCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("query did not stop after cancel")
	}
	assert.False(t, l.Running())
}

func TestLocal_WaitsForCancelledQuery(t *testing.T) {
	l := NewLocal(testutil.NewTestLogger(t))

	_, prev, err := l.begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.CancelQuery(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := l.ExecuteQuery(context.Background(), "postgres://u:p@host:notaport/db", "SELECT 1")
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("query ran before the cancelled one finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	l.end(prev)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBridgeBusy)
		assert.Contains(t, err.Error(), "invalid connection string")
	case <-time.After(2 * time.Second):
		t.Fatal("query still waiting after the cancelled one finished")
	}
	assert.False(t, l.Running())
}

func TestLocal_DrainTimeout(t *testing.T) {
	l := NewLocal(nil)
	l.drainTimeout = 20 * time.Millisecond

	_, prev, err := l.begin(context.Background())
	require.NoError(t, err)
	defer l.end(prev)
	require.NoError(t, l.CancelQuery(context.Background()))

	_, err = l.ExecuteQuery(context.Background(), "postgres://u:p@host:5432/db", "SELECT 1")
	assert.ErrorIs(t, err, ErrBridgeBusy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.drainTimeout = time.Minute
	_, err = l.ExecuteQuery(ctx, "postgres://u:p@host:5432/db", "SELECT 1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_CancelWithNothingRunning(t *testing.T) {
	l := NewLocal(nil)
	require.NoError(t, l.CancelQuery(context.Background()))
	require.NoError(t, l.CancelQuery(context.Background()))
	assert.False(t, l.Running())

	// An earlier cancel must not affect the next query.
	_, err := l.ExecuteQuery(context.Background(), "not a url ://", "SELECT 1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueryCancelled)
}

func TestLocal_InvalidConnectionString(t *testing.T) {
	l := NewLocal(nil)
	_, err := l.ExecuteQuery(context.Background(), "postgres://u:p@host:notaport/db", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid connection string")
	assert.False(t, l.Running())
}

func TestLocal_CallerContextCancelled(t *testing.T) {
	l := NewLocal(nil)
	connString := silentServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.ExecuteQuery(ctx, connString, "SELECT 1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueryCancelled)
	assert.False(t, l.Running())
}

// TestLocal_Postgres runs against a real server when LEAPQUERY_TEST_POSTGRES_URL is set.
func TestLocal_Postgres(t *testing.T) {
	connString := os.Getenv("LEAPQUERY_TEST_POSTGRES_URL")
	if connString == "" {
		t.Skip("LEAPQUERY_TEST_POSTGRES_URL not set")
	}

	l := NewLocal(testutil.NewTestLogger(t))
	payload, err := l.ExecuteQuery(context.Background(), connString,
		`SELECT 42::int4 AS id, true AS active, ARRAY['a','b'] AS tags, NULL::text AS note`)
	require.NoError(t, err)

	var rows []core.RawRelationalRow
	require.NoError(t, json.Unmarshal(payload, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, core.RawRelationalRow{
		{Name: "id", Tag: core.TagNumber, Encoded: "42"},
		{Name: "active", Tag: core.TagBool, Encoded: "true"},
		{Name: "tags", Tag: core.TagArray, Encoded: `["a","b"]`},
		{Name: "note", Tag: core.TagString, Encoded: core.NullSentinel},
	}, rows[0])
}
