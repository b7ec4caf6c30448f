// Package reconcile merges remote DTOs into the entity store.
//
// Ensure is the one canonical merge: find the entity by (kind, id), create it
// if absent, otherwise write only the fields the DTO carries that differ from
// the stored values. Every DTO shape for a kind funnels through the same
// path, so no two code paths can disagree about how a kind is merged.
//
// A Reconciler runs inside one store.Batch, normally the batch of a write
// actor unit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/chii/internal/dto"
	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/store"
)

// Handle identifies the entity a reconcile touched and what it changed.
type Handle struct {
	Kind    model.Kind `json:"kind"`
	ID      int64      `json:"id"`
	Created bool       `json:"created,omitempty"`
	Changed []string   `json:"changed,omitempty"`
}

// Dirty reports whether the reconcile wrote anything.
func (h Handle) Dirty() bool {
	return h.Created || len(h.Changed) > 0
}

// Reconciler merges DTOs through one write batch.
type Reconciler struct {
	b *store.Batch
}

// New returns a Reconciler writing through b.
func New(b *store.Batch) *Reconciler {
	return &Reconciler{b: b}
}

// relationSource is a DTO that links its entity to a subject.
type relationSource interface {
	dto.Source
	SubjectRelation() model.Relation
}

// Ensure merges src and returns its handle.
func (r *Reconciler) Ensure(ctx context.Context, src dto.Source) (Handle, error) {
	switch v := src.(type) {
	case dto.Episode:
		return r.EnsureEpisode(ctx, v)
	case dto.UserEpisodeCollection:
		return r.EnsureEpisodeCollection(ctx, v)
	case dto.UserSubjectCollection:
		return r.EnsureCollection(ctx, v)
	case relationSource:
		return r.ensureRelated(ctx, v)
	}
	return r.put(ctx, src.Kind(), src.Key(), src.Fields())
}

// EnsureMany merges every source in order and stops at the first error.
func (r *Reconciler) EnsureMany(ctx context.Context, srcs []dto.Source) ([]Handle, error) {
	out := make([]Handle, 0, len(srcs))
	for _, src := range srcs {
		h, err := r.Ensure(ctx, src)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// EnsureEpisode merges an episode. A new episode is assigned the next
// position within its subject; existing positions are never rewritten.
func (r *Reconciler) EnsureEpisode(ctx context.Context, e dto.Episode) (Handle, error) {
	return r.ensureEpisode(ctx, e.ID, e.SubjectID, e.Fields())
}

// EnsureEpisodeCollection merges an episode together with the user's watch
// status for it.
func (r *Reconciler) EnsureEpisodeCollection(ctx context.Context, c dto.UserEpisodeCollection) (Handle, error) {
	return r.ensureEpisode(ctx, c.Episode.ID, c.Episode.SubjectID, c.Fields())
}

func (r *Reconciler) ensureEpisode(ctx context.Context, id, subjectID int64, fields model.Fields) (Handle, error) {
	exists, err := r.exists(ctx, model.KindEpisode, id)
	if err != nil {
		return Handle{}, err
	}
	if !exists {
		pos, err := r.nextPosition(ctx, subjectID)
		if err != nil {
			return Handle{}, err
		}
		fields["position"] = pos
	}
	return r.put(ctx, model.KindEpisode, id, fields)
}

func (r *Reconciler) nextPosition(ctx context.Context, subjectID int64) (int64, error) {
	n, err := r.b.Count(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM episodes WHERE subject_id = ?`,
		[]any{subjectID})
	if err != nil {
		return 0, fmt.Errorf("next position for subject %d: %w", subjectID, err)
	}
	return n + 1, nil
}

// EnsureCollection merges a user collection in three steps: the nested
// subject, then the collection row with its search alias, then the link to
// the subject type.
func (r *Reconciler) EnsureCollection(ctx context.Context, c dto.UserSubjectCollection) (Handle, error) {
	if c.Subject != nil {
		if c.Subject.ID != c.SubjectID {
			return Handle{}, fmt.Errorf("%w: collection %d embeds subject %d", store.ErrInvalidKey, c.SubjectID, c.Subject.ID)
		}
		if _, err := r.put(ctx, model.KindSubject, c.Subject.ID, c.Subject.Fields()); err != nil {
			return Handle{}, fmt.Errorf("ensure collection %d subject: %w", c.SubjectID, err)
		}
	}

	fields := c.Fields()
	subj, found, err := r.subject(ctx, c.SubjectID)
	if err != nil {
		return Handle{}, err
	}
	if found {
		fields["alias"] = model.SearchAlias(subj.Name, subj.NameCN, subj.Infobox)
	}
	h, err := r.put(ctx, model.KindCollection, c.SubjectID, fields)
	if err != nil {
		return Handle{}, err
	}

	subjectType := c.SubjectType
	if subjectType == 0 && found {
		subjectType = subj.Type
	}
	if subjectType == 0 {
		return h, nil
	}
	link, err := r.put(ctx, model.KindCollection, c.SubjectID, model.Fields{"subject_type": subjectType})
	if err != nil {
		return Handle{}, err
	}
	return h.merge(link), nil
}

// EnsureCharacter merges a character. Related payloads also merge the
// subject link into the character's relation list.
func (r *Reconciler) EnsureCharacter(ctx context.Context, src dto.Source) (Handle, error) {
	if src.Kind() != model.KindCharacter {
		return Handle{}, fmt.Errorf("%w: %s is not a character", store.ErrInvalidKey, src.Kind())
	}
	return r.Ensure(ctx, src)
}

// EnsurePerson merges a person. Related payloads also merge the subject link
// into the person's relation list.
func (r *Reconciler) EnsurePerson(ctx context.Context, src dto.Source) (Handle, error) {
	if src.Kind() != model.KindPerson {
		return Handle{}, fmt.Errorf("%w: %s is not a person", store.ErrInvalidKey, src.Kind())
	}
	return r.Ensure(ctx, src)
}

// EnsureGroup merges a group.
func (r *Reconciler) EnsureGroup(ctx context.Context, g dto.Group) (Handle, error) {
	return r.put(ctx, model.KindGroup, g.ID, g.Fields())
}

func (r *Reconciler) ensureRelated(ctx context.Context, src relationSource) (Handle, error) {
	fields := src.Fields()
	rel := src.SubjectRelation()
	if rel.SubjectID <= 0 {
		return r.put(ctx, src.Kind(), src.Key(), fields)
	}

	var current []model.Relation
	stored, err := r.b.Get(ctx, src.Kind(), src.Key())
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return Handle{}, err
	default:
		if err := stored.Decode("relations", &current); err != nil {
			return Handle{}, err
		}
	}
	fields["relations"] = MergeRelations(current, rel)
	return r.put(ctx, src.Kind(), src.Key(), fields)
}

// MergeRelations adds rels to current. A relation for a subject already in
// the list replaces it. The result is sorted by subject ID.
func MergeRelations(current []model.Relation, rels ...model.Relation) []model.Relation {
	bySubject := make(map[int64]model.Relation, len(current)+len(rels))
	for _, r := range current {
		bySubject[r.SubjectID] = r
	}
	for _, r := range rels {
		bySubject[r.SubjectID] = r
	}
	out := make([]model.Relation, 0, len(bySubject))
	for _, r := range bySubject {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

func (r *Reconciler) put(ctx context.Context, kind model.Kind, id int64, fields model.Fields) (Handle, error) {
	c, err := r.b.Put(ctx, kind, id, fields)
	if err != nil {
		return Handle{}, fmt.Errorf("ensure %s %d: %w", kind, id, err)
	}
	return Handle{Kind: kind, ID: id, Created: c.Created, Changed: c.Fields}, nil
}

func (r *Reconciler) exists(ctx context.Context, kind model.Kind, id int64) (bool, error) {
	_, err := r.b.Get(ctx, kind, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("ensure %s %d: %w", kind, id, err)
	}
	return true, nil
}

func (r *Reconciler) subject(ctx context.Context, id int64) (model.Subject, bool, error) {
	f, err := r.b.Get(ctx, model.KindSubject, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return model.Subject{}, false, nil
	case err != nil:
		return model.Subject{}, false, err
	}
	s, err := model.DecodeSubject(f)
	if err != nil {
		return model.Subject{}, false, err
	}
	return s, true, nil
}

func (h Handle) merge(o Handle) Handle {
	h.Created = h.Created || o.Created
	seen := make(map[string]bool, len(h.Changed)+len(o.Changed))
	var names []string
	for _, n := range append(append([]string{}, h.Changed...), o.Changed...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	h.Changed = names
	return h
}
