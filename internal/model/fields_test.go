package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		colType  ColumnType
		input    any
		expected any
	}{
		{"nil", ColText, nil, nil},
		{"int", ColInt, 3, int64(3)},
		{"int32", ColInt, int32(3), int64(3)},
		{"time", ColInt, ts, ts.Unix()},
		{"zero time", ColInt, time.Time{}, nil},
		{"enum", ColInt, EpisodeSpecial, int64(1)},
		{"float from int", ColFloat, 12, float64(12)},
		{"float32", ColFloat, float32(1.5), float64(1.5)},
		{"text", ColText, "abc", "abc"},
		{"bool", ColBool, true, true},
		{"json struct", ColJSON, []Tag{{Name: "SF", Count: 3}}, `[{"count":3,"name":"SF"}]`},
		{"json raw", ColJSON, json.RawMessage(`{"b":1, "a":2}`), `{"a":2,"b":1}`},
		{"json nil map", ColJSON, Images(nil), nil},
		{"json string passthrough", ColJSON, `{"a":1}`, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.colType, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeRejectsWrongType(t *testing.T) {
	_, err := Normalize(ColInt, "12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "int column")

	_, err = Normalize(ColBool, 1)
	require.Error(t, err)
}

func TestFieldsAccessors(t *testing.T) {
	f := Fields{
		"id":     int64(9),
		"score":  float64(7.25),
		"name":   "Cowboy Bebop",
		"nsfw":   int64(1),
		"tags":   `["space"]`,
		"absent": nil,
	}

	assert.Equal(t, int64(9), f.Int("id"))
	assert.Equal(t, 7.25, f.Float("score"))
	assert.Equal(t, float64(9), f.Float("id"))
	assert.Equal(t, "Cowboy Bebop", f.String("name"))
	assert.True(t, f.Bool("nsfw"))
	assert.Equal(t, int64(0), f.Int("absent"))
	assert.Equal(t, "", f.String("missing"))

	var tags []string
	require.NoError(t, f.Decode("tags", &tags))
	assert.Equal(t, []string{"space"}, tags)

	var untouched []string
	require.NoError(t, f.Decode("missing", &untouched))
	assert.Nil(t, untouched)

	assert.Equal(t, []string{"absent", "id", "name", "nsfw", "score", "tags"}, f.Names())
}

func TestChangeEmpty(t *testing.T) {
	assert.True(t, Change{Kind: KindSubject, ID: 1}.Empty())
	assert.False(t, Change{Kind: KindSubject, ID: 1, Created: true}.Empty())
	assert.False(t, Change{Kind: KindSubject, ID: 1, Fields: []string{"name"}}.Empty())
}

func TestSchemaRegistry(t *testing.T) {
	assert.Equal(t, []Kind{KindCharacter, KindCollection, KindEpisode, KindGroup, KindPerson, KindSubject}, Kinds())

	s, ok := SchemaFor(KindCollection)
	require.True(t, ok)
	assert.Equal(t, "subject_id", s.Key)
	assert.True(t, s.HasField("subject_id"))
	assert.True(t, s.HasField("ep_status"))
	assert.False(t, s.HasField("id"))

	typ, ok := s.FieldType("subject_id")
	require.True(t, ok)
	assert.Equal(t, ColInt, typ)

	sel := s.SelectList()
	assert.Equal(t, "subject_id", sel[0])
	assert.Len(t, sel, len(s.Columns)+1)

	_, ok = SchemaFor("blog")
	assert.False(t, ok)
}
