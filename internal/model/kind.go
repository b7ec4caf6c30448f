package model

import (
	"fmt"
	"sort"
)

// Kind names an entity kind. Each kind maps to exactly one table.
type Kind string

const (
	KindSubject    Kind = "subject"
	KindEpisode    Kind = "episode"
	KindCollection Kind = "collection"
	KindCharacter  Kind = "character"
	KindPerson     Kind = "person"
	KindGroup      Kind = "group"
)

// ColumnType describes how a column is stored and normalized.
type ColumnType int

const (
	ColInt ColumnType = iota + 1
	ColFloat
	ColText
	ColBool
	// ColJSON is canonical JSON stored as TEXT.
	ColJSON
)

func (t ColumnType) String() string {
	switch t {
	case ColInt:
		return "int"
	case ColFloat:
		return "float"
	case ColText:
		return "text"
	case ColBool:
		return "bool"
	case ColJSON:
		return "json"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column is a single non-key column of an entity table.
type Column struct {
	Name string
	Type ColumnType
}

// Schema describes the table backing one entity kind.
//
// Columns lists every non-key column in table order. The key column is always
// an INTEGER PRIMARY KEY and is not part of Columns.
type Schema struct {
	Kind    Kind
	Table   string
	Key     string
	Columns []Column
}

// Column looks up a non-key column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasField reports whether name is the key or one of the columns.
func (s Schema) HasField(name string) bool {
	if name == s.Key {
		return true
	}
	_, ok := s.Column(name)
	return ok
}

// FieldType returns the column type for name, treating the key as ColInt.
func (s Schema) FieldType(name string) (ColumnType, bool) {
	if name == s.Key {
		return ColInt, true
	}
	c, ok := s.Column(name)
	return c.Type, ok
}

// SelectList returns the key followed by every column, in table order.
func (s Schema) SelectList() []string {
	out := make([]string, 0, len(s.Columns)+1)
	out = append(out, s.Key)
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

var schemas = map[Kind]Schema{
	KindSubject: {
		Kind:  KindSubject,
		Table: "subjects",
		Key:   "id",
		Columns: []Column{
			{"type", ColInt},
			{"name", ColText},
			{"name_cn", ColText},
			{"summary", ColText},
			{"date", ColText},
			{"platform", ColText},
			{"images", ColJSON},
			{"infobox", ColJSON},
			{"tags", ColJSON},
			{"rating_score", ColFloat},
			{"rating_rank", ColInt},
			{"rating_total", ColInt},
			{"collection_total", ColInt},
			{"eps", ColInt},
			{"total_episodes", ColInt},
			{"volumes", ColInt},
			{"nsfw", ColBool},
			{"locked", ColBool},
		},
	},
	KindEpisode: {
		Kind:  KindEpisode,
		Table: "episodes",
		Key:   "id",
		Columns: []Column{
			{"subject_id", ColInt},
			{"type", ColInt},
			{"sort", ColFloat},
			{"ep", ColFloat},
			{"name", ColText},
			{"name_cn", ColText},
			{"airdate", ColText},
			{"duration", ColText},
			{"description", ColText},
			{"comment", ColInt},
			{"disc", ColInt},
			{"status", ColInt},
			{"position", ColInt},
		},
	},
	KindCollection: {
		Kind:  KindCollection,
		Table: "collections",
		Key:   "subject_id",
		Columns: []Column{
			{"subject_type", ColInt},
			{"type", ColInt},
			{"rate", ColInt},
			{"comment", ColText},
			{"tags", ColJSON},
			{"ep_status", ColInt},
			{"vol_status", ColInt},
			{"private", ColBool},
			{"updated_at", ColInt},
			{"alias", ColText},
		},
	},
	KindCharacter: {
		Kind:  KindCharacter,
		Table: "characters",
		Key:   "id",
		Columns: []Column{
			{"name", ColText},
			{"type", ColInt},
			{"images", ColJSON},
			{"summary", ColText},
			{"locked", ColBool},
			{"collects", ColInt},
			{"collected", ColBool},
			{"relations", ColJSON},
		},
	},
	KindPerson: {
		Kind:  KindPerson,
		Table: "persons",
		Key:   "id",
		Columns: []Column{
			{"name", ColText},
			{"type", ColInt},
			{"career", ColJSON},
			{"images", ColJSON},
			{"summary", ColText},
			{"locked", ColBool},
			{"collects", ColInt},
			{"collected", ColBool},
			{"relations", ColJSON},
		},
	},
	KindGroup: {
		Kind:  KindGroup,
		Table: "groups",
		Key:   "id",
		Columns: []Column{
			{"name", ColText},
			{"title", ColText},
			{"description", ColText},
			{"icon", ColText},
			{"members", ColInt},
			{"nsfw", ColBool},
			{"created_at", ColInt},
			{"joined", ColBool},
		},
	},
}

// SchemaFor returns the schema registered for kind.
func SchemaFor(kind Kind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// Kinds returns every registered kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(schemas))
	for k := range schemas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
