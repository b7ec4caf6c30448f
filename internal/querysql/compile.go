// Package querysql compiles queryir queries to SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/queryir"
)

// SQLCompiler compiles queryir queries to parameterized SQLite SQL.
//
// Values are always bound as parameters, never interpolated. Every SELECT
// ends with the kind's key as a final ORDER BY term.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile returns a SELECT of the kind's full column list.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	s, where, params, err := c.prepare(q)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s%s%s",
		strings.Join(s.SelectList(), ", "),
		s.Table,
		where,
		orderBy(s, q.Order),
		window(q.Limit, q.Offset))
	return sql, params, nil
}

// CompileKeys returns a SELECT of the key column only, in the same order
// Compile would return rows.
func (c *SQLCompiler) CompileKeys(q queryir.Query) (string, []any, error) {
	s, where, params, err := c.prepare(q)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s%s%s",
		s.Key,
		s.Table,
		where,
		orderBy(s, q.Order),
		window(q.Limit, q.Offset))
	return sql, params, nil
}

// CompileCount returns a COUNT(*) over the filter. Order and window are
// ignored.
func (c *SQLCompiler) CompileCount(q queryir.Query) (string, []any, error) {
	q.Order, q.Limit, q.Offset = nil, 0, 0
	s, where, params, err := c.prepare(q)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.Table, where), params, nil
}

func (c *SQLCompiler) prepare(q queryir.Query) (model.Schema, string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return model.Schema{}, "", nil, err
	}
	s, _ := model.SchemaFor(q.Kind)
	if q.Filter == nil {
		return s, "", nil, nil
	}
	sql, params, err := c.compilePredicate(s, q.Filter)
	if err != nil {
		return model.Schema{}, "", nil, fmt.Errorf("compile filter: %w", err)
	}
	if sql == "" {
		return s, "", nil, nil
	}
	return s, " WHERE " + sql, params, nil
}

// compilePredicate returns "" for a predicate that is always true.
func (c *SQLCompiler) compilePredicate(s model.Schema, p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "", nil, nil
	case queryir.Equals:
		v, err := param(s, pred.Field, pred.Value)
		if err != nil {
			return "", nil, err
		}
		return pred.Field + " = ?", []any{v}, nil
	case queryir.Compare:
		v, err := param(s, pred.Field, pred.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", pred.Field, pred.Op), []any{v}, nil
	case queryir.In:
		params := make([]any, 0, len(pred.Values))
		for _, raw := range pred.Values {
			v, err := param(s, pred.Field, raw)
			if err != nil {
				return "", nil, err
			}
			params = append(params, v)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
		return fmt.Sprintf("%s IN (%s)", pred.Field, marks), params, nil
	case queryir.Contains:
		return pred.Field + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(pred.Value) + "%"}, nil
	case queryir.And:
		var (
			parts  []string
			params []any
		)
		for _, sub := range pred.Predicates {
			sql, ps, err := c.compilePredicate(s, sub)
			if err != nil {
				return "", nil, err
			}
			if sql == "" {
				continue
			}
			if _, nested := sub.(queryir.And); nested {
				sql = "(" + sql + ")"
			}
			parts = append(parts, sql)
			params = append(params, ps...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func param(s model.Schema, field string, v any) (any, error) {
	t, _ := s.FieldType(field)
	return model.Normalize(t, v)
}

// orderBy appends the key as a final tiebreaker unless the caller already
// ordered by it.
func orderBy(s model.Schema, terms []queryir.OrderBy) string {
	parts := make([]string, 0, len(terms)+1)
	keyed := false
	for _, o := range terms {
		term := o.Field
		if t, _ := s.FieldType(o.Field); t == model.ColText {
			term += " COLLATE BINARY"
		}
		if o.Desc {
			term += " DESC"
		} else {
			term += " ASC"
		}
		parts = append(parts, term)
		if o.Field == s.Key {
			keyed = true
			break
		}
	}
	if !keyed {
		parts = append(parts, s.Key+" ASC")
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func window(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
