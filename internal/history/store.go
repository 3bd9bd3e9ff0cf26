// Package history records settled queries in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/query"
)

// MemoryPath opens a private in-memory history.
const MemoryPath = ":memory:"

// ErrNotFound is returned by Get for an unknown query ID.
var ErrNotFound = errors.New("query not found in history")

// Entry is one recorded query.
type Entry struct {
	ID         string
	Engine     string
	Connection string
	SQL        string
	State      string
	Rows       int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// Filter narrows List results.
type Filter struct {
	Connection string
	State      string
	// Limit caps the number of entries. Zero means 50.
	Limit int
}

// Store is the SQLite-backed query history.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path and runs
// migrations. Use MemoryPath for an in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := MemoryPath
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// An in-memory database lives and dies with its single connection.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Record inserts an entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errMsg *string
	if e.Error != "" {
		errMsg = &e.Error
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (id, engine, connection, sql_text, state, row_count, error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Engine, e.Connection, e.SQL, e.State, e.Rows, errMsg,
		e.StartedAt.UTC(), e.FinishedAt.UTC(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	return nil
}

// RecordQuery records a settled query. A query that is still running is
// rejected.
func (s *Store) RecordQuery(ctx context.Context, req core.QueryRequest, q *query.Query) error {
	res, ok := q.Result()
	if !ok {
		return fmt.Errorf("query %s has not settled", q.ID())
	}
	return s.Record(ctx, EntryFor(req, q, res))
}

// EntryFor builds the history entry of a settled query.
func EntryFor(req core.QueryRequest, q *query.Query, res query.Result) Entry {
	e := Entry{
		ID:         q.ID(),
		Engine:     req.Connection.Engine.String(),
		Connection: req.Name,
		SQL:        req.SQL,
		State:      q.State().String(),
		Rows:       len(res.Rows),
		StartedAt:  q.StartedAt(),
		Duration:   q.Duration(),
	}
	e.FinishedAt = e.StartedAt.Add(e.Duration)
	if res.Err != nil && q.State() != query.StateAborted {
		e.Error = res.Err.Error()
	}
	return e
}

// Get returns one entry by query ID.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get query: %w", err)
	}
	return e, nil
}

// List returns the most recent entries first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var (
		where []string
		args  []any
	)
	if f.Connection != "" {
		where = append(where, "connection = ?")
		args = append(args, f.Connection)
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, f.State)
	}

	q := selectEntry
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queries: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest keep entries and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if keep < 0 {
		keep = 0
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM queries WHERE id NOT IN (SELECT id FROM queries ORDER BY started_at DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, _ := result.RowsAffected()
	s.logger.Debug("pruned query history", slog.Int64("removed", n))
	return n, nil
}

const selectEntry = `SELECT id, engine, connection, sql_text, state, row_count, error, started_at, finished_at, duration_ms FROM queries`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e          Entry
		errMsg     sql.NullString
		durationMS int64
	)
	if err := sc.Scan(&e.ID, &e.Engine, &e.Connection, &e.SQL, &e.State, &e.Rows, &errMsg,
		&e.StartedAt, &e.FinishedAt, &durationMS); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		e.Error = errMsg.String
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return &e, nil
}
