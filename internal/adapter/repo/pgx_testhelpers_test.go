package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// rowOf returns a row whose Scan assigns values positionally.
func rowOf(values ...any) simpleRow {
	return simpleRow{scan: func(dest ...any) error {
		if len(dest) != len(values) {
			return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
		}
		for i, v := range values {
			target := reflect.ValueOf(dest[i]).Elem()
			if v == nil {
				target.Set(reflect.Zero(target.Type()))
				continue
			}
			target.Set(reflect.ValueOf(v))
		}
		return nil
	}}
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

type sliceRows struct {
	testRowsBase
	rows []simpleRow
	pos  int
}

func (r *sliceRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *sliceRows) Scan(dest ...any) error { return r.rows[r.pos-1].Scan(dest...) }

func (r *sliceRows) Err() error { return nil }

func (r *sliceRows) Close() {}

// stubExecutor answers each query constant with a canned row or row set.
type stubExecutor struct {
	rows    map[string]simpleRow
	sets    map[string][]simpleRow
	tags    map[string]pgconn.CommandTag
	queries []string
}

func (s *stubExecutor) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	return s.tags[query], nil
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	s.queries = append(s.queries, query)
	return s.rows[query]
}

func (s *stubExecutor) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	s.queries = append(s.queries, query)
	return &sliceRows{rows: s.sets[query]}, nil
}
