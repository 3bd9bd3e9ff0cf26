package columnar

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// FormatJSONEachRow asks the engine for one self-describing JSON object per row.
const FormatJSONEachRow = "JSONEachRow"

// Request is a query submission to a columnar engine.
type Request struct {
	Query  string
	Format string
}

// Client is a per-invocation session with a columnar engine.
type Client interface {
	// Query runs the request and returns every decoded record in engine order.
	// Cancelling ctx must abort the request at the transport level.
	Query(ctx context.Context, req Request) ([]core.RawColumnarRow, error)

	// Close releases the session.
	Close() error
}

// Target is where and as whom a client connects.
type Target struct {
	URL      string
	Username string
	Password string
	Database string
	Options  map[string]any
}

// ClientFactory opens a client for a target.
type ClientFactory func(target Target, logger *slog.Logger) (Client, error)

// BuildTarget derives the connection target from a descriptor.
// A host without an http:// or https:// scheme gets http://; a non-zero port
// is appended as :port.
func BuildTarget(conn core.ConnectionDescriptor) Target {
	host := conn.Host
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	if conn.Port != 0 {
		host = host + ":" + strconv.Itoa(conn.Port)
	}

	return Target{
		URL:      host,
		Username: conn.Username,
		Password: conn.Password,
		Database: conn.Database,
		Options:  conn.Options,
	}
}
