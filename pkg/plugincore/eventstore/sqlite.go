package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/plugincore/pkg/plugincore/event"
)

// SQLiteStore persists events to SQLite.
//
// Data and Metadata are stored as JSON, so values come back in their JSON
// shape: numbers as float64, objects as map[string]any.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	mu      sync.RWMutex
	closed  bool
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithMaxRows caps the table at n events, deleting the oldest on insert.
// Zero means unbounded.
func WithMaxRows(n int) SQLiteOption {
	return func(s *SQLiteStore) { s.maxRows = n }
}

// NewSQLiteStore opens or creates an event database.
// The path should be a file path (e.g., "./events.db") or ":memory:" for testing.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			namespace TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL,
			cancellable INTEGER NOT NULL,
			cancelled INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			data BLOB,
			metadata BLOB
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
	} {
		if _, err := db.Exec(idx); err != nil {
			db.Close()
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store implements event.Store.
func (s *SQLiteStore) Store(ctx context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	data, err := encodeJSON(evt.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	meta, err := encodeJSON(evt.Metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, source, namespace, version, priority,
			cancellable, cancelled, timestamp, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.ID, evt.Type, evt.Source, evt.Namespace, evt.Version, int(evt.Priority),
		evt.Cancellable, evt.Cancelled(), evt.Timestamp.UnixNano(), data, meta)
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}

	if s.maxRows > 0 {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM events WHERE seq NOT IN (
				SELECT seq FROM events ORDER BY seq DESC LIMIT ?
			)
		`, s.maxRows); err != nil {
			return fmt.Errorf("trim events: %w", err)
		}
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// where renders the filter fields of c as a SQL clause and its arguments.
func where(c event.Criteria) (string, []any) {
	var (
		conds []string
		args  []any
	)
	in := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		conds = append(conds, col+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")+")")
		for _, v := range vals {
			args = append(args, v)
		}
	}
	in("type", c.Types)
	in("source", c.Sources)
	in("namespace", c.Namespaces)
	in("id", c.IDs)
	if !c.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, c.Since.UnixNano())
	}
	if !c.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, c.Until.UnixNano())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy mirrors event.Criteria.Apply: the sort field, then timestamp,
// then insertion order.
func orderBy(c event.Criteria) string {
	dir := "ASC"
	if c.Descending {
		dir = "DESC"
	}
	var cols []string
	switch c.SortBy {
	case event.SortByType:
		cols = append(cols, "type "+dir)
	case event.SortBySource:
		cols = append(cols, "source "+dir)
	}
	cols = append(cols, "timestamp "+dir, "seq ASC")
	return " ORDER BY " + strings.Join(cols, ", ")
}

const selectColumns = `SELECT id, type, source, namespace, version, priority,
	cancellable, cancelled, timestamp, data, metadata FROM events`

// Retrieve implements event.Store.
func (s *SQLiteStore) Retrieve(ctx context.Context, c event.Criteria) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	clause, args := where(c)
	query := selectColumns + clause + orderBy(c)
	if c.Limit > 0 || c.Skip > 0 {
		limit := -1
		if c.Limit > 0 {
			limit = c.Limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(c.Skip, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*event.Event, error) {
	var (
		id, typ, source, ns, ver string
		priority                 int
		cancellable, cancelled   bool
		ts                       int64
		data, meta               []byte
	)
	if err := row.Scan(&id, &typ, &source, &ns, &ver, &priority,
		&cancellable, &cancelled, &ts, &data, &meta); err != nil {
		return nil, err
	}

	evt := &event.Event{
		ID:          id,
		Type:        typ,
		Source:      source,
		Namespace:   ns,
		Version:     ver,
		Priority:    event.Priority(priority),
		Cancellable: cancellable,
		Timestamp:   time.Unix(0, ts).UTC(),
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &evt.Data); err != nil {
			return nil, fmt.Errorf("decode event %s data: %w", id, err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &evt.Metadata); err != nil {
			return nil, fmt.Errorf("decode event %s metadata: %w", id, err)
		}
	}
	if cancelled {
		evt.Cancel()
	}
	return evt, nil
}

// Count implements event.Store.
func (s *SQLiteStore) Count(ctx context.Context, c event.Criteria) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	clause, args := where(c)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Delete implements event.Store.
func (s *SQLiteStore) Delete(ctx context.Context, c event.Criteria) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	clause, args := where(c)
	res, err := s.db.ExecContext(ctx, "DELETE FROM events"+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return int(n), nil
}

// GetByID implements event.Store.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	evt, err := scanEvent(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, event.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return evt, nil
}

// Stream implements event.Store. The query runs when iteration begins and
// its rows are read before the first event is yielded, so the consumer may
// write to the store while iterating.
func (s *SQLiteStore) Stream(ctx context.Context, c event.Criteria) iter.Seq2[*event.Event, error] {
	return func(yield func(*event.Event, error) bool) {
		events, err := s.Retrieve(ctx, c)
		streamSlice(ctx, events, err)(yield)
	}
}

// Close implements event.Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
