package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chii/internal/model"
)

func TestValidate_Valid(t *testing.T) {
	q := Query{
		Kind: model.KindEpisode,
		Filter: And{Predicates: []Predicate{
			Equals{Field: "subject_id", Value: int64(1)},
			Compare{Field: "sort", Op: OpLE, Value: 12.0},
			In{Field: "type", Values: []any{model.EpisodeMain}},
			Contains{Field: "name", Value: "ep"},
		}},
		Order:  []OrderBy{Asc("sort"), Desc("id")},
		Limit:  MaxLimit,
		Offset: 30,
	}
	require.NoError(t, Validate(q))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		msg  string
	}{
		{"unknown kind", Query{Kind: "album"}, "unknown kind"},
		{"limit too large", Query{Kind: model.KindSubject, Limit: MaxLimit + 1}, "limit"},
		{"negative limit", Query{Kind: model.KindSubject, Limit: -1}, "limit"},
		{"negative offset", Query{Kind: model.KindSubject, Offset: -1}, "offset"},
		{"unknown order field", Query{Kind: model.KindSubject, Order: []OrderBy{Asc("score")}}, "no field"},
		{"json order field", Query{Kind: model.KindSubject, Order: []OrderBy{Asc("tags")}}, "JSON"},
		{"unknown filter field", Query{Kind: model.KindSubject, Filter: Equals{Field: "x", Value: 1}}, "no field"},
		{"json filter field", Query{Kind: model.KindSubject, Filter: Equals{Field: "infobox", Value: "[]"}}, "JSON"},
		{"type mismatch", Query{Kind: model.KindSubject, Filter: Equals{Field: "eps", Value: "twelve"}}, "eps"},
		{"null value", Query{Kind: model.KindSubject, Filter: Equals{Field: "name", Value: nil}}, "null"},
		{"bad operator", Query{Kind: model.KindSubject, Filter: Compare{Field: "eps", Op: "~", Value: 1}}, "operator"},
		{"empty in", Query{Kind: model.KindSubject, Filter: In{Field: "type"}}, "empty IN"},
		{"contains non-text", Query{Kind: model.KindSubject, Filter: Contains{Field: "eps", Value: "1"}}, "text field"},
		{
			"nested error",
			Query{Kind: model.KindSubject, Filter: And{Predicates: []Predicate{
				Equals{Field: "type", Value: model.SubjectAnime},
				In{Field: "bogus", Values: []any{1}},
			}}},
			"bogus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.q)
			require.ErrorIs(t, err, ErrInvalidQuery)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestAllOf(t *testing.T) {
	assert.Nil(t, AllOf())
	assert.Nil(t, AllOf(nil, nil))

	one := Equals{Field: "id", Value: 1}
	assert.Equal(t, one, AllOf(nil, one))

	two := Equals{Field: "type", Value: 2}
	assert.Equal(t, And{Predicates: []Predicate{one, two}}, AllOf(one, nil, two))
}

func TestOpValid(t *testing.T) {
	for _, op := range []Op{OpLT, OpLE, OpGT, OpGE, OpNE} {
		assert.True(t, op.Valid(), op)
	}
	assert.False(t, Op("=").Valid())
}
