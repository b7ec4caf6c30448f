// Package surface is the read side used by the UI collaborators: typed,
// paginated views over the entity store.
//
// Every read goes to the store's reader pool and never waits on the write
// actor.
package surface

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/queryir"
	"github.com/roach88/chii/internal/querysql"
	"github.com/roach88/chii/internal/store"
)

// DefaultLimit is used when a view is requested with no limit.
const DefaultLimit = 30

// EpisodeOrder selects the ordering of an episode list.
type EpisodeOrder int

const (
	// EpisodesBySort orders by sort, then arrival position.
	EpisodesBySort EpisodeOrder = iota
	// EpisodesBySortDesc is EpisodesBySort reversed.
	EpisodesBySortDesc
)

// CollectionOrder selects the ordering of a collection list.
type CollectionOrder int

const (
	// CollectionsByRecency puts the most recently updated first.
	CollectionsByRecency CollectionOrder = iota
	// CollectionsByRating puts the highest user rating first.
	CollectionsByRating
)

// Surface runs typed read queries against one store.
type Surface struct {
	store    *store.Store
	compiler *querysql.SQLCompiler
}

// New creates a Surface.
func New(s *store.Store) *Surface {
	return &Surface{store: s, compiler: querysql.NewSQLCompiler()}
}

// EpisodeFilter selects the episodes of one subject.
type EpisodeFilter struct {
	SubjectID int64
	Types     []model.EpisodeType   // empty = every type
	Statuses  []model.EpisodeStatus // empty = every status
}

func (f EpisodeFilter) predicate() queryir.Predicate {
	preds := []queryir.Predicate{queryir.Equals{Field: "subject_id", Value: f.SubjectID}}
	if len(f.Types) > 0 {
		vals := make([]any, len(f.Types))
		for i, t := range f.Types {
			vals[i] = t
		}
		preds = append(preds, queryir.In{Field: "type", Values: vals})
	}
	if len(f.Statuses) > 0 {
		vals := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			vals[i] = s
		}
		preds = append(preds, queryir.In{Field: "status", Values: vals})
	}
	return queryir.AllOf(preds...)
}

// Episodes returns one page of a subject's episodes.
func (s *Surface) Episodes(ctx context.Context, f EpisodeFilter, order EpisodeOrder, limit, offset int) ([]model.Episode, error) {
	q := queryir.Query{
		Kind:   model.KindEpisode,
		Filter: f.predicate(),
		Limit:  ClampLimit(limit),
		Offset: offset,
	}
	switch order {
	case EpisodesBySortDesc:
		q.Order = []queryir.OrderBy{queryir.Desc("sort"), queryir.Desc("position"), queryir.Desc("id")}
	default:
		q.Order = []queryir.OrderBy{queryir.Asc("sort"), queryir.Asc("position")}
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("episodes of subject %d: %w", f.SubjectID, err)
	}
	out := make([]model.Episode, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.DecodeEpisode(r))
	}
	return out, nil
}

// CountEpisodes counts the episodes matching f.
func (s *Surface) CountEpisodes(ctx context.Context, f EpisodeFilter) (int64, error) {
	n, err := s.count(ctx, queryir.Query{Kind: model.KindEpisode, Filter: f.predicate()})
	if err != nil {
		return 0, fmt.Errorf("count episodes of subject %d: %w", f.SubjectID, err)
	}
	return n, nil
}

// RemainingEpisodes counts the episodes of the given types not yet marked
// done. No types means main episodes only.
func (s *Surface) RemainingEpisodes(ctx context.Context, subjectID int64, types ...model.EpisodeType) (int64, error) {
	if len(types) == 0 {
		types = []model.EpisodeType{model.EpisodeMain}
	}
	f := EpisodeFilter{SubjectID: subjectID, Types: types}
	q := queryir.Query{
		Kind: model.KindEpisode,
		Filter: queryir.AllOf(
			f.predicate(),
			queryir.Compare{Field: "status", Op: queryir.OpNE, Value: model.StatusDone},
		),
	}
	n, err := s.count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("remaining episodes of subject %d: %w", subjectID, err)
	}
	return n, nil
}

// CollectionFilter narrows a collection list. Zero values mean "any".
type CollectionFilter struct {
	SubjectType model.SubjectType
	Type        model.CollectionType
	Search      string // substring of the subject's names and aliases
}

func (f CollectionFilter) predicate() queryir.Predicate {
	var preds []queryir.Predicate
	if f.SubjectType != 0 {
		preds = append(preds, queryir.Equals{Field: "subject_type", Value: f.SubjectType})
	}
	if f.Type != 0 {
		preds = append(preds, queryir.Equals{Field: "type", Value: f.Type})
	}
	if term := model.FoldSearch(f.Search); term != "" {
		preds = append(preds, queryir.Contains{Field: "alias", Value: term})
	}
	return queryir.AllOf(preds...)
}

// Collections returns one page of the user's collections.
func (s *Surface) Collections(ctx context.Context, f CollectionFilter, order CollectionOrder, limit, offset int) ([]model.Collection, error) {
	q := queryir.Query{
		Kind:   model.KindCollection,
		Filter: f.predicate(),
		Limit:  ClampLimit(limit),
		Offset: offset,
	}
	switch order {
	case CollectionsByRating:
		q.Order = []queryir.OrderBy{queryir.Desc("rate"), queryir.Desc("updated_at")}
	default:
		q.Order = []queryir.OrderBy{queryir.Desc("updated_at")}
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("collections: %w", err)
	}
	out := make([]model.Collection, 0, len(rows))
	for _, r := range rows {
		c, err := model.DecodeCollection(r)
		if err != nil {
			return nil, fmt.Errorf("collection %d: %w", r.Int("subject_id"), err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CountCollections counts the collections matching f.
func (s *Surface) CountCollections(ctx context.Context, f CollectionFilter) (int64, error) {
	n, err := s.count(ctx, queryir.Query{Kind: model.KindCollection, Filter: f.predicate()})
	if err != nil {
		return 0, fmt.Errorf("count collections: %w", err)
	}
	return n, nil
}

// Subject returns the subject, or nil if it is not cached.
func (s *Surface) Subject(ctx context.Context, id int64) (*model.Subject, error) {
	return optional(s.store.GetSubject(ctx, id))
}

// Episode returns the episode, or nil if it is not cached.
func (s *Surface) Episode(ctx context.Context, id int64) (*model.Episode, error) {
	return optional(s.store.GetEpisode(ctx, id))
}

// Collection returns the user's collection of a subject, or nil.
func (s *Surface) Collection(ctx context.Context, subjectID int64) (*model.Collection, error) {
	return optional(s.store.GetCollection(ctx, subjectID))
}

// Character returns the character, or nil if it is not cached.
func (s *Surface) Character(ctx context.Context, id int64) (*model.Character, error) {
	return optional(s.store.GetCharacter(ctx, id))
}

// Person returns the person, or nil if it is not cached.
func (s *Surface) Person(ctx context.Context, id int64) (*model.Person, error) {
	return optional(s.store.GetPerson(ctx, id))
}

// Query runs an arbitrary query and returns raw field sets.
func (s *Surface) Query(ctx context.Context, q queryir.Query) ([]model.Fields, error) {
	return s.query(ctx, q)
}

func (s *Surface) query(ctx context.Context, q queryir.Query) ([]model.Fields, error) {
	sql, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	return s.store.QueryFields(ctx, q.Kind, sql, params)
}

func (s *Surface) count(ctx context.Context, q queryir.Query) (int64, error) {
	sql, params, err := s.compiler.CompileCount(q)
	if err != nil {
		return 0, err
	}
	return s.store.Count(ctx, sql, params)
}

// optional maps store.ErrNotFound to (nil, nil).
func optional[T any](v T, err error) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ClampLimit maps a requested page size into 1..queryir.MaxLimit; n <= 0
// means DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > queryir.MaxLimit:
		return queryir.MaxLimit
	}
	return n
}
