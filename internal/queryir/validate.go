package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/chii/internal/model"
)

// ErrInvalidQuery is wrapped by every validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// Validate checks q against the schema of its kind: every field referenced
// must exist, every value must convert to the field's column type, and the
// window must be within bounds.
func Validate(q Query) error {
	s, ok := model.SchemaFor(q.Kind)
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, q.Kind)
	}
	if q.Limit < 0 || q.Limit > MaxLimit {
		return fmt.Errorf("%w: limit %d outside 0..%d", ErrInvalidQuery, q.Limit, MaxLimit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidQuery, q.Offset)
	}
	for _, o := range q.Order {
		t, ok := s.FieldType(o.Field)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q", ErrInvalidQuery, q.Kind, o.Field)
		}
		if t == model.ColJSON {
			return fmt.Errorf("%w: cannot order by JSON field %q", ErrInvalidQuery, o.Field)
		}
	}
	return validatePredicate(s, q.Filter)
}

func validatePredicate(s model.Schema, p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		return checkValue(s, pred.Field, pred.Value)
	case Compare:
		if !pred.Op.Valid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, pred.Op)
		}
		return checkValue(s, pred.Field, pred.Value)
	case In:
		if len(pred.Values) == 0 {
			return fmt.Errorf("%w: empty IN list for %q", ErrInvalidQuery, pred.Field)
		}
		for _, v := range pred.Values {
			if err := checkValue(s, pred.Field, v); err != nil {
				return err
			}
		}
		return nil
	case Contains:
		t, ok := s.FieldType(pred.Field)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q", ErrInvalidQuery, s.Kind, pred.Field)
		}
		if t != model.ColText {
			return fmt.Errorf("%w: contains needs a text field, %q is not", ErrInvalidQuery, pred.Field)
		}
		return nil
	case And:
		for _, sub := range pred.Predicates {
			if err := validatePredicate(s, sub); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported predicate %T", ErrInvalidQuery, p)
	}
}

func checkValue(s model.Schema, field string, v any) error {
	t, ok := s.FieldType(field)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrInvalidQuery, s.Kind, field)
	}
	if t == model.ColJSON {
		return fmt.Errorf("%w: cannot filter on JSON field %q", ErrInvalidQuery, field)
	}
	nv, err := model.Normalize(t, v)
	if err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, field, err)
	}
	if nv == nil {
		return fmt.Errorf("%w: field %q compared to null", ErrInvalidQuery, field)
	}
	return nil
}
