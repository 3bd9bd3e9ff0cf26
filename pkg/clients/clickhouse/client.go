// Package clickhouse implements the columnar client capability over the
// ClickHouse HTTP interface.
//
// Importing the package registers the client as "clickhouse", which is also
// the columnar default.
package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/adapters/columnar"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

func init() {
	columnar.Register("clickhouse", func(target columnar.Target, logger *slog.Logger) (columnar.Client, error) {
		return New(target, logger)
	})
}

// maxErrorBody caps how much of a failed response is kept in ServerError.
const maxErrorBody = 64 << 10

// ServerError is a non-200 answer from the ClickHouse server.
type ServerError struct {
	StatusCode int
	// Code is the ClickHouse exception code, when the server sent one.
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("clickhouse: HTTP %d (code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("clickhouse: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client is a ClickHouse HTTP session. It is owned by a single invocation.
type Client struct {
	endpoint *url.URL
	target   columnar.Target
	params   Params
	http     *http.Client
	logger   *slog.Logger
}

// New creates a client for target.
// If logger is nil, a discard logger is used.
func New(target columnar.Target, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	endpoint, err := url.Parse(target.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid clickhouse url %q: %w", target.URL, err)
	}
	if endpoint.Host == "" {
		return nil, fmt.Errorf("invalid clickhouse url %q: missing host", target.URL)
	}

	params, err := DecodeParams(target.Options)
	if err != nil {
		return nil, err
	}

	return &Client{
		endpoint: endpoint,
		target:   target,
		params:   params,
		http:     &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		logger:   logger,
	}, nil
}

// Query posts the SQL text and decodes the JSONEachRow stream.
func (c *Client) Query(ctx context.Context, req columnar.Request) ([]core.RawColumnarRow, error) {
	if c.params.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.params.RequestTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(req), strings.NewReader(req.Query))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.target.Username != "" || c.target.Password != "" {
		httpReq.SetBasicAuth(c.target.Username, c.target.Password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach clickhouse: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ServerError{
			StatusCode: resp.StatusCode,
			Code:       resp.Header.Get("X-ClickHouse-Exception-Code"),
			Message:    strings.TrimSpace(string(body)),
		}
	}

	records, err := DecodeEachRow(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("clickhouse response decoded",
		slog.Int("rows", len(records)),
		slog.String("query_id", resp.Header.Get("X-ClickHouse-Query-Id")))
	return records, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) requestURL(req columnar.Request) string {
	u := *c.endpoint
	q := u.Query()

	format := req.Format
	if format == "" {
		format = columnar.FormatJSONEachRow
	}
	q.Set("default_format", format)
	if c.target.Database != "" {
		q.Set("database", c.target.Database)
	}
	if c.params.Compress {
		q.Set("enable_http_compression", "1")
	}
	for k, v := range c.params.Settings {
		q.Set(k, v)
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// DecodeEachRow reads a stream of JSON objects, one per row, keeping the
// field order the server sent. Numbers are kept as json.Number.
func DecodeEachRow(r io.Reader) ([]core.RawColumnarRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []core.RawColumnarRow
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", len(records)+1, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("failed to decode row %d: expected object, got %v", len(records)+1, tok)
		}

		rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

func decodeObject(dec *json.Decoder) (core.RawColumnarRow, error) {
	var rec core.RawColumnarRow
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", tok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		rec = append(rec, core.Field{Name: name, Value: v})
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Ensure Client implements columnar.Client interface
var _ columnar.Client = (*Client)(nil)
