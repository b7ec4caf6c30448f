// Package dto holds the remote response shapes of the /v0 API.
//
// Every shape that describes a local entity implements Source. A Source
// reports only the fields its payload actually carries, so reconciling a
// slim list item never blanks attributes learned from a full detail page.
package dto

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/chii/internal/model"
)

// Source is a remote payload that maps onto one local entity.
type Source interface {
	Kind() model.Kind
	Key() int64
	Fields() model.Fields
}

// Page is one page of a paginated list endpoint.
type Page[T any] struct {
	Total  int64 `json:"total"`
	Limit  int64 `json:"limit"`
	Offset int64 `json:"offset"`
	Data   []T   `json:"data"`
}

// DecodePage decodes the raw items of p into T.
func DecodePage[T any](p Page[json.RawMessage]) (Page[T], error) {
	out := Page[T]{
		Total:  p.Total,
		Limit:  p.Limit,
		Offset: p.Offset,
		Data:   make([]T, 0, len(p.Data)),
	}
	for i, raw := range p.Data {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return Page[T]{}, fmt.Errorf("decode item %d: %w", p.Offset+int64(i), err)
		}
		out.Data = append(out.Data, item)
	}
	return out, nil
}

// Record is a Source built directly from fields. Used by callers that already
// hold a column map, such as tests and the HTTP API.
type Record struct {
	EntityKind model.Kind
	ID         int64
	Values     model.Fields
}

func (r Record) Kind() model.Kind { return r.EntityKind }
func (r Record) Key() int64       { return r.ID }

func (r Record) Fields() model.Fields {
	out := make(model.Fields, len(r.Values))
	for k, v := range r.Values {
		out[k] = v
	}
	return out
}
