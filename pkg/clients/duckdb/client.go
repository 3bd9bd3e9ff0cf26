// Package duckdb implements the columnar client capability on an embedded
// DuckDB database.
//
// The connection's database field is the DuckDB path; an empty path opens a
// private in-memory database. Importing the package registers the client as
// "duckdb":
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/clients/duckdb"
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/leapquery/pkg/adapters/columnar"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// MemoryPath opens an in-memory database.
const MemoryPath = ":memory:"

func init() {
	columnar.Register("duckdb", func(target columnar.Target, logger *slog.Logger) (columnar.Client, error) {
		return Open(context.Background(), target, logger)
	})
}

// Client runs queries on a database/sql handle to DuckDB.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// New wraps an already opened database.
// If logger is nil, a discard logger is used.
func New(db *sql.DB, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{db: db, logger: logger}
}

// Open opens the database named by target. The "path" option overrides
// target.Database.
func Open(ctx context.Context, target columnar.Target, logger *slog.Logger) (*Client, error) {
	path := target.Database
	if p, ok := target.Options["path"].(string); ok && p != "" {
		path = p
	}
	if path == "" {
		path = MemoryPath
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return New(db, logger), nil
}

// Query runs the request. The format is ignored: rows are always scanned into
// ordered records.
func (c *Client) Query(ctx context.Context, req columnar.Request) ([]core.RawColumnarRow, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := c.db.QueryContext(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []core.RawColumnarRow
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(records)+1, err)
		}

		rec := make(core.RawColumnarRow, len(columns))
		for i, name := range columns {
			rec[i] = core.Field{Name: name, Value: nativeValue(values[i])}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	c.logger.Debug("duckdb query finished", slog.Int("rows", len(records)))
	return records, nil
}

// Close closes the database.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// nativeValue flattens DuckDB driver types into the shapes the normalizer
// understands. Nested values are made JSON shaped so LIST and STRUCT columns
// compare equal to decoded relational arrays.
func nativeValue(v any) any {
	switch x := v.(type) {
	case goduckdb.Decimal:
		return x.Float64()
	case goduckdb.Interval:
		return map[string]any{
			"months": float64(x.Months),
			"days":   float64(x.Days),
			"micros": float64(x.Micros),
		}
	case goduckdb.Map:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = nested(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = nested(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = nested(val)
		}
		return out
	default:
		return v
	}
}

func nested(v any) any {
	switch x := v.(type) {
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return nativeValue(v)
	}
}

// Ensure Client implements columnar.Client interface
var _ columnar.Client = (*Client)(nil)
