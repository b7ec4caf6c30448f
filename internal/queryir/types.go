package queryir

import "github.com/roach88/chii/internal/model"

// MaxLimit is the largest page a Query may request.
const MaxLimit = 100

// Query is a filtered, ordered window over one entity kind.
//
// Limit 0 means no limit. The compiled SQL always ends with the kind's key
// as a final ordering term, so equal sort values still come back in a
// stable order.
type Query struct {
	Kind   model.Kind
	Filter Predicate // nil = all rows
	Order  []OrderBy
	Limit  int
	Offset int
}

// OrderBy is one ordering term.
type OrderBy struct {
	Field string
	Desc  bool
}

// Asc orders by field ascending.
func Asc(field string) OrderBy { return OrderBy{Field: field} }

// Desc orders by field descending.
func Desc(field string) OrderBy { return OrderBy{Field: field, Desc: true} }

// Predicate is a filter condition.
//
// Sealed: only types in this package implement it, so compilers can switch
// exhaustively.
type Predicate interface {
	predicateNode()
}

// Equals matches rows whose field equals Value.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// Op is a comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpNE Op = "!="
)

// Valid reports whether o is a known operator.
func (o Op) Valid() bool {
	switch o {
	case OpLT, OpLE, OpGT, OpGE, OpNE:
		return true
	}
	return false
}

// Compare matches rows where field Op Value holds.
type Compare struct {
	Field string
	Op    Op
	Value any
}

func (Compare) predicateNode() {}

// In matches rows whose field is one of Values. Values must not be empty.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// Contains matches text fields containing Value as a substring. Matching is
// literal: % and _ in Value have no special meaning.
type Contains struct {
	Field string
	Value string
}

func (Contains) predicateNode() {}

// And matches rows satisfying every predicate.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// AllOf builds an And, dropping nil predicates. It returns nil when nothing
// remains and the single predicate when only one does.
func AllOf(preds ...Predicate) Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}
