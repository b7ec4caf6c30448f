package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Fields is a partial set of column values for one entity.
//
// A DTO that only carries some attributes produces Fields with only those
// keys; absent keys are never written, so partial responses cannot blank
// attributes learned from richer responses.
type Fields map[string]any

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Int returns the named field as int64, or 0 when absent or NULL.
func (f Fields) Int(name string) int64 {
	switch v := f[name].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// Float returns the named field as float64, or 0 when absent or NULL.
func (f Fields) Float(name string) float64 {
	switch v := f[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// String returns the named field as a string, or "" when absent or NULL.
func (f Fields) String(name string) string {
	if v, ok := f[name].(string); ok {
		return v
	}
	return ""
}

// Bool returns the named field as a bool, or false when absent or NULL.
func (f Fields) Bool(name string) bool {
	switch v := f[name].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	}
	return false
}

// Decode unmarshals a JSON column into out. Absent or empty columns leave
// out untouched.
func (f Fields) Decode(name string, out any) error {
	s := f.String(name)
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Normalize converts v to the canonical Go representation for a column of
// type t. nil stays nil (SQL NULL).
func Normalize(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case ColInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case time.Time:
			if n.IsZero() {
				return nil, nil
			}
			return n.Unix(), nil
		case SubjectType:
			return int64(n), nil
		case EpisodeType:
			return int64(n), nil
		case EpisodeStatus:
			return int64(n), nil
		case CollectionType:
			return int64(n), nil
		}
	case ColFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case ColText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ColBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ColJSON:
		switch j := v.(type) {
		case string:
			return j, nil
		case json.RawMessage:
			return canonicalText(j)
		case []byte:
			return canonicalText(j)
		default:
			data, err := MarshalCanonical(v)
			if err != nil {
				return nil, err
			}
			if string(data) == "null" {
				return nil, nil
			}
			return string(data), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T in %s column", v, t)
}

func canonicalText(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := CanonicalizeJSON(raw)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

// Equal compares two normalized values.
func Equal(a, b any) bool {
	return a == b
}

// Change records what one write did to one entity row.
type Change struct {
	Kind    Kind     `json:"kind"`
	ID      int64    `json:"id"`
	Created bool     `json:"created,omitempty"`
	Deleted bool     `json:"deleted,omitempty"`
	Fields  []string `json:"fields,omitempty"` // changed field names, sorted
}

// Empty reports whether the write touched nothing.
func (c Change) Empty() bool {
	return !c.Created && !c.Deleted && len(c.Fields) == 0
}

// Commit describes one committed write batch.
type Commit struct {
	BatchID string   `json:"batch_id"`
	Seq     int64    `json:"seq"`
	Name    string   `json:"name"`
	Changes []Change `json:"changes"`
}
