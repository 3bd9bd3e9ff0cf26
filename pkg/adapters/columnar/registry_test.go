package columnar

import (
	"log/slog"
	"testing"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownClientError_Error(t *testing.T) {
	err := &UnknownClientError{
		Name:      "fake_engine",
		Available: []string{"clickhouse", "duckdb"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "fake_engine", "error should mention the unknown client")
	assert.Contains(t, msg, "clickhouse")
	assert.Contains(t, msg, "leapquery.yaml", "error should mention config file")
}

func TestRegister(t *testing.T) {
	Register("test_client_internal", func(Target, *slog.Logger) (Client, error) { return nil, nil })

	assert.True(t, IsRegistered("test_client_internal"))
	assert.Contains(t, ListClients(), "test_client_internal")

	factory, ok := Get("test_client_internal")
	require.True(t, ok)
	assert.NotNil(t, factory)

	_, ok = Get("nonexistent")
	assert.False(t, ok)
}

func TestAdapter_UsesRegisteredClient(t *testing.T) {
	fc := &fakeClient{}
	Register("test_client_lookup", fc.factory())

	a := New(nil)
	conn := core.ConnectionDescriptor{
		Host:    "ch",
		Options: map[string]any{"client": "test_client_lookup"},
	}

	_, err := a.Run(t.Context(), "SELECT 1", conn)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", fc.gotReq.Query)
}
