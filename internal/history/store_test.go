package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/query"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(id, conn, state string, started time.Time) Entry {
	return Entry{
		ID:         id,
		Engine:     "relational",
		Connection: conn,
		SQL:        "SELECT 1",
		State:      state,
		Rows:       1,
		StartedAt:  started,
		FinishedAt: started.Add(25 * time.Millisecond),
		Duration:   25 * time.Millisecond,
	}
}

func TestStore_MigrationVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := s.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestStore_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := entry("q1", "warehouse", "failed", started)
	e.Error = "relation \"t\" does not exist"
	require.NoError(t, s.Record(ctx, e))

	got, err := s.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "warehouse", got.Connection)
	assert.Equal(t, "failed", got.State)
	assert.Equal(t, e.Error, got.Error)
	assert.Equal(t, 25*time.Millisecond, got.Duration)
	assert.True(t, started.Equal(got.StartedAt))

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, entry("a", "pg", "completed", base)))
	require.NoError(t, s.Record(ctx, entry("b", "ch", "aborted", base.Add(time.Minute))))
	require.NoError(t, s.Record(ctx, entry("c", "pg", "failed", base.Add(2*time.Minute))))

	tests := []struct {
		name   string
		filter Filter
		ids    []string
	}{
		{name: "all newest first", filter: Filter{}, ids: []string{"c", "b", "a"}},
		{name: "by connection", filter: Filter{Connection: "pg"}, ids: []string{"c", "a"}},
		{name: "by state", filter: Filter{State: "aborted"}, ids: []string{"b"}},
		{name: "limit", filter: Filter{Limit: 1}, ids: []string{"c"}},
		{name: "no match", filter: Filter{Connection: "nope"}, ids: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.List(ctx, tt.filter)
			require.NoError(t, err)

			var ids []string
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Record(ctx, entry(id, "pg", "completed", base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].ID)
	assert.Equal(t, "c", entries[1].ID)
}

func TestStore_RecordQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	req := core.QueryRequest{
		SQL:        "SELECT 1",
		Name:       "local",
		Connection: core.ConnectionDescriptor{Engine: core.EngineColumnar},
	}

	row := core.NewNormalizedRow(1)
	row.Set("one", core.Number(1))
	q := query.Start(ctx, func(context.Context) ([]core.NormalizedRow, error) {
		return []core.NormalizedRow{row}, nil
	})
	_, err := q.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecordQuery(ctx, req, q))

	got, err := s.Get(ctx, q.ID())
	require.NoError(t, err)
	assert.Equal(t, "columnar", got.Engine)
	assert.Equal(t, "local", got.Connection)
	assert.Equal(t, "completed", got.State)
	assert.Equal(t, 1, got.Rows)
	assert.Empty(t, got.Error)
}

func TestStore_RecordQueryAbortedHasNoError(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := query.Start(ctx, func(context.Context) ([]core.NormalizedRow, error) {
		return nil, nil
	})
	<-q.Done()

	require.NoError(t, s.RecordQuery(context.Background(), core.QueryRequest{SQL: "SELECT 1"}, q))
	got, err := s.Get(context.Background(), q.ID())
	require.NoError(t, err)
	assert.Equal(t, "aborted", got.State)
	assert.Empty(t, got.Error)
}

func TestStore_RecordQueryRunning(t *testing.T) {
	s := openTestStore(t)

	release := make(chan struct{})
	defer close(release)
	q := query.Start(context.Background(), func(context.Context) ([]core.NormalizedRow, error) {
		<-release
		return nil, nil
	})

	err := s.RecordQuery(context.Background(), core.QueryRequest{}, q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not settled")
}

func TestOpen_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)

	// Reopening runs no new migrations.
	s, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, path, s.Path())
}
