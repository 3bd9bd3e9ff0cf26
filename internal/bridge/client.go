package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// RemoteError is an error response from a bridge server.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client talks to a bridge Server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the server at baseURL.
// If httpClient is nil, http.DefaultClient is used. If logger is nil, a
// discard logger is used.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// ExecuteQuery sends the query to the server and returns the serialized rows.
func (c *Client) ExecuteQuery(ctx context.Context, connString, query string) ([]byte, error) {
	body, err := json.Marshal(executeRequest{ConnectionString: connString, Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.post(ctx, ExecutePath, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode bridge reply: %w", err)
	}
	return []byte(out.Result), nil
}

// CancelQuery asks the server to cancel its active query.
func (c *Client) CancelQuery(ctx context.Context) error {
	resp, err := c.post(ctx, CancelPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	c.logger.Debug("bridge cancel sent")
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach bridge: %w", err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error == "" {
		return &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	switch er.Code {
	case codeBusy:
		return ErrBridgeBusy
	case codeCancelled:
		return ErrQueryCancelled
	}
	return &RemoteError{StatusCode: resp.StatusCode, Message: er.Error}
}
