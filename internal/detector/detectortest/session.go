// Package detectortest provides in-memory Session implementations for tests.
package detectortest

import (
	"context"

	"github.com/driftdetect/backend/internal/detector"
)

// Row is a result row with ordered columns.
type Row struct {
	keys   []string
	values []any
}

// NewRow builds a row from alternating column names and values:
// NewRow("person", "alice", "related", []any{"bob"}).
func NewRow(kv ...any) Row {
	if len(kv)%2 != 0 {
		panic("detectortest: NewRow needs key/value pairs")
	}
	r := Row{}
	for i := 0; i < len(kv); i += 2 {
		r.keys = append(r.keys, kv[i].(string))
		r.values = append(r.values, kv[i+1])
	}
	return r
}

func (r Row) Keys() []string { return r.keys }

func (r Row) Values() []any { return r.values }

func (r Row) Get(key string) (any, bool) {
	for i, k := range r.keys {
		if k == key {
			return r.values[i], true
		}
	}
	return nil, false
}

// Session returns the same rows for every query. QueryErr fails ExecuteQuery;
// CursorErr fails the cursor after FailAfter rows have been read.
type Session struct {
	Rows      []Row
	QueryErr  error
	CursorErr error
	FailAfter int

	Queries []string
	// Fetched counts rows handed out across all results.
	Fetched int
	Closed  bool
}

func (s *Session) Close(ctx context.Context) error {
	s.Closed = true
	return nil
}

func (s *Session) ExecuteQuery(ctx context.Context, query string) (detector.Result, error) {
	s.Queries = append(s.Queries, query)
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	return &result{session: s, pos: -1}, nil
}

type result struct {
	session *Session
	pos     int
	err     error
}

func (r *result) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	if r.session.CursorErr != nil && r.pos+1 >= r.session.FailAfter {
		r.err = r.session.CursorErr
		return false
	}
	r.pos++
	if r.pos >= len(r.session.Rows) {
		return false
	}
	r.session.Fetched++
	return true
}

func (r *result) Row() detector.Row { return r.session.Rows[r.pos] }

func (r *result) Err() error { return r.err }
