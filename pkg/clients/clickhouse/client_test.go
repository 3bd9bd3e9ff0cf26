package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/adapters/columnar"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, opts map[string]any) *Client {
	t.Helper()
	c, err := New(columnar.Target{
		URL:      url,
		Username: "default",
		Password: "secret",
		Database: "analytics",
		Options:  opts,
	}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Query(t *testing.T) {
	var (
		gotMethod string
		gotBody   string
		gotQuery  map[string]string
		gotUser   string
		gotPass   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotUser, gotPass, _ = r.BasicAuth()
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_, _ = io.WriteString(w, `{"zeta":1,"alpha":"x","tags":["a","b"]}`+"\n"+`{"zeta":2.5,"alpha":null,"tags":[]}`+"\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, map[string]any{
		"client":   "clickhouse",
		"settings": map[string]any{"max_execution_time": 60, "readonly": "1"},
	})

	records, err := c.Query(context.Background(), columnar.Request{Query: "SELECT 1", Format: columnar.FormatJSONEachRow})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "SELECT 1", gotBody)
	assert.Equal(t, "default", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, map[string]string{
		"default_format":     "JSONEachRow",
		"database":           "analytics",
		"max_execution_time": "60",
		"readonly":           "1",
	}, gotQuery)

	require.Len(t, records, 2)
	assert.Equal(t, core.RawColumnarRow{
		{Name: "zeta", Value: json.Number("1")},
		{Name: "alpha", Value: "x"},
		{Name: "tags", Value: []any{"a", "b"}},
	}, records[0])
	assert.Equal(t, core.RawColumnarRow{
		{Name: "zeta", Value: json.Number("2.5")},
		{Name: "alpha", Value: nil},
		{Name: "tags", Value: []any{}},
	}, records[1])
}

func TestClient_QueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-ClickHouse-Exception-Code", "62")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "Code: 62. DB::Exception: Syntax error\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Query(context.Background(), columnar.Request{Query: "SELEC 1"})
	require.Error(t, err)

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusBadRequest, serverErr.StatusCode)
	assert.Equal(t, "62", serverErr.Code)
	assert.Equal(t, "Code: 62. DB::Exception: Syntax error", serverErr.Message)
}

func TestClient_QueryCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Query(ctx, columnar.Request{Query: "SELECT sleep(3)"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, map[string]any{"request_timeout": "20ms"})

	_, err := c.Query(context.Background(), columnar.Request{Query: "SELECT sleep(3)"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_InvalidTarget(t *testing.T) {
	_, err := New(columnar.Target{URL: "http://"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing host")

	_, err = New(columnar.Target{URL: "http://localhost:8123", Options: map[string]any{"request_timeout": "soon"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid clickhouse options")
}

func TestDecodeEachRow(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		rows    int
		wantErr string
	}{
		{name: "empty body", input: "", rows: 0},
		{name: "whitespace only", input: "\n\n", rows: 0},
		{name: "nested object", input: `{"m":{"k":[1,2]}}`, rows: 1},
		{name: "not an object", input: `[1,2]`, wantErr: "expected object"},
		{name: "truncated", input: `{"a":1`, wantErr: "failed to decode row 1"},
		{name: "exception after rows", input: "{\"a\":1}\nCode: 241. DB::Exception: Memory limit", wantErr: "failed to decode row 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := DecodeEachRow(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.rows)
		})
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, columnar.IsRegistered("clickhouse"))
}

func TestAdapterEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"id":42,"active":true,"tags":["a","b"],"note":null}`+"\n")
	}))
	defer srv.Close()

	a := columnar.New(testutil.NewTestLogger(t))
	rows, err := a.Run(context.Background(), "SELECT * FROM t", core.ConnectionDescriptor{
		Engine: core.EngineColumnar,
		Host:   srv.URL,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"id", "active", "tags", "note"}, rows[0].Columns())
	assert.Equal(t, map[string]any{
		"id":     42.0,
		"active": true,
		"tags":   []any{"a", "b"},
		"note":   nil,
	}, rows[0].Map())
}

func TestAdapterEndToEnd_NestedNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"nums":[1,2,3],"point":{"x":1.5,"y":-2}}`+"\n")
	}))
	defer srv.Close()

	a := columnar.New(testutil.NewTestLogger(t))
	rows, err := a.Run(context.Background(), "SELECT nums, point FROM t", core.ConnectionDescriptor{
		Engine: core.EngineColumnar,
		Host:   srv.URL,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	relational := normalize.Normalize([]core.RawRelationalRow{{
		{Name: "nums", Tag: core.TagArray, Encoded: "[1,2,3]"},
		{Name: "point", Tag: core.TagArray, Encoded: `{"x":1.5,"y":-2}`},
	}})
	require.Len(t, relational, 1)
	assert.True(t, rows[0].Equal(relational[0]))
	assert.Equal(t, map[string]any{
		"nums":  []any{1.0, 2.0, 3.0},
		"point": map[string]any{"x": 1.5, "y": -2.0},
	}, rows[0].Map())
}
