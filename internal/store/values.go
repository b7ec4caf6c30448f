package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/chii/internal/model"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// schemaFor resolves kind and validates id.
func schemaFor(kind model.Kind, id int64) (model.Schema, error) {
	s, ok := model.SchemaFor(kind)
	if !ok {
		return model.Schema{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, kind)
	}
	if id <= 0 {
		return model.Schema{}, fmt.Errorf("%w: %s id %d", ErrInvalidKey, kind, id)
	}
	return s, nil
}

func selectByKey(s model.Schema) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(s.SelectList(), ", "), s.Table, s.Key)
}

// scanFields reads one row laid out as s.SelectList().
func scanFields(sc rowScanner, s model.Schema) (model.Fields, error) {
	names := s.SelectList()
	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := sc.Scan(ptrs...); err != nil {
		return nil, err
	}

	f := make(model.Fields, len(names))
	for i, name := range names {
		t, _ := s.FieldType(name)
		f[name] = fromSQL(t, vals[i])
	}
	return f, nil
}

// fromSQL converts a driver value to the normalized representation of t.
func fromSQL(t model.ColumnType, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch t {
	case model.ColInt:
		switch n := v.(type) {
		case float64:
			return int64(n)
		case bool:
			if n {
				return int64(1)
			}
			return int64(0)
		}
	case model.ColFloat:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	case model.ColBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	}
	return v
}

func getFields(ctx context.Context, q querier, kind model.Kind, id int64) (model.Fields, error) {
	s, err := schemaFor(kind, id)
	if err != nil {
		return nil, err
	}
	f, err := scanFields(q.QueryRowContext(ctx, selectByKey(s), id), s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return f, nil
}

// queryFields runs a SELECT whose column list is kind's SelectList.
func queryFields(ctx context.Context, q querier, kind model.Kind, query string, args []any) ([]model.Fields, error) {
	s, ok := model.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, kind)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	out := []model.Fields{}
	for rows.Next() {
		f, err := scanFields(rows, s)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return out, nil
}

func count(ctx context.Context, q querier, query string, args []any) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// queryInts runs a query returning one integer column.
func queryInts(ctx context.Context, q querier, query string, args []any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return out, nil
}
