// Package cascade performs compound user mutations that must keep the
// remote collection and the local cache in agreement.
//
// Every operation is remote-first. Local rows are written only after the
// remote call succeeds, in one write actor batch. Once the remote call has
// been issued the local follow-up runs to completion even if the caller's
// context is cancelled.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/chii/internal/actor"
	"github.com/roach88/chii/internal/dto"
	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/queryir"
	"github.com/roach88/chii/internal/querysql"
	"github.com/roach88/chii/internal/remote"
	"github.com/roach88/chii/internal/store"
)

// Coordinator runs cascading mutations for one store.
type Coordinator struct {
	actor    *actor.Actor
	store    *store.Store
	remote   remote.Requester
	compiler *querysql.SQLCompiler
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNow sets the clock used for collection updated_at.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator. Reads go to s directly; writes go through a.
func New(a *actor.Actor, s *store.Store, r remote.Requester, opts ...Option) *Coordinator {
	c := &Coordinator{
		actor:    a,
		store:    s,
		remote:   r,
		compiler: querysql.NewSQLCompiler(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result reports what a mutation wrote.
type Result struct {
	SubjectID  int64        `json:"subject_id"`
	EpisodeIDs []int64      `json:"episode_ids,omitempty"`
	Commit     model.Commit `json:"commit"`
}

// ThroughOptions configures MarkWatchedThrough.
type ThroughOptions struct {
	// Status is written to every resolved episode.
	Status model.EpisodeStatus
	// Types restricts the episodes; empty means every type.
	Types []model.EpisodeType
}

// Watched is the usual ThroughOptions: mark done, every type.
func Watched() ThroughOptions {
	return ThroughOptions{Status: model.StatusDone}
}

// MarkWatchedThrough sets Status on every episode of the subject whose sort
// is at most ordinal.
//
// The episode IDs are resolved from one read snapshot and sent in a single
// PATCH. Only after that succeeds are the episodes, the collection's
// ep_status (as the remote now reports it) and its updated_at written, in
// one batch. On remote failure the store is left unchanged.
func (c *Coordinator) MarkWatchedThrough(ctx context.Context, subjectID int64, ordinal float64, opts ThroughOptions) (Result, error) {
	if subjectID <= 0 {
		return Result{}, newInvalidArgument(subjectID, "subject id must be positive")
	}
	if !opts.Status.Valid() {
		return Result{}, newInvalidArgument(subjectID, "unknown episode status %d", opts.Status)
	}

	ids, err := c.resolveThrough(ctx, subjectID, ordinal, opts.Types)
	if err != nil {
		return Result{}, err
	}

	path := fmt.Sprintf("/v0/users/-/collections/%d/episodes", subjectID)
	body := map[string]any{"episode_id": ids, "type": opts.Status}
	if err := c.call(ctx, http.MethodPatch, path, body); err != nil {
		return Result{}, &Error{
			Code:       ErrCodeRemoteRejected,
			Message:    "patch episode statuses",
			SubjectID:  subjectID,
			EpisodeIDs: ids,
			Err:        err,
		}
	}

	progress := c.remoteProgress(ctx, subjectID)
	name := fmt.Sprintf("watched-through:%d@%g", subjectID, ordinal)
	commit, err := c.commit(ctx, name, func(ctx context.Context, b *store.Batch) error {
		if err := setStatuses(ctx, b, ids, opts.Status); err != nil {
			return err
		}
		return c.touchCollection(ctx, b, subjectID, progress)
	})
	if err != nil {
		return Result{}, c.localFailure(subjectID, ids, err)
	}
	return Result{SubjectID: subjectID, EpisodeIDs: ids, Commit: commit}, nil
}

// MarkWatchedSingle sets the status of one episode, remote first.
func (c *Coordinator) MarkWatchedSingle(ctx context.Context, episodeID int64, status model.EpisodeStatus) (Result, error) {
	if episodeID <= 0 {
		return Result{}, newInvalidArgument(0, "episode id must be positive")
	}
	if !status.Valid() {
		return Result{}, newInvalidArgument(0, "unknown episode status %d", status)
	}

	ep, err := c.store.GetEpisode(ctx, episodeID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, newSubjectNotFound(0, "episode %d is not cached", episodeID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("mark episode %d: %w", episodeID, err)
	}
	ids := []int64{episodeID}

	path := fmt.Sprintf("/v0/users/-/collections/-/episodes/%d", episodeID)
	if err := c.call(ctx, http.MethodPut, path, map[string]any{"type": status}); err != nil {
		return Result{}, &Error{
			Code:       ErrCodeRemoteRejected,
			Message:    "put episode status",
			SubjectID:  ep.SubjectID,
			EpisodeIDs: ids,
			Err:        err,
		}
	}

	progress := c.remoteProgress(ctx, ep.SubjectID)
	commit, err := c.commit(ctx, fmt.Sprintf("watched:%d", episodeID), func(ctx context.Context, b *store.Batch) error {
		if err := setStatuses(ctx, b, ids, status); err != nil {
			return err
		}
		return c.touchCollection(ctx, b, ep.SubjectID, progress)
	})
	if err != nil {
		return Result{}, c.localFailure(ep.SubjectID, ids, err)
	}
	return Result{SubjectID: ep.SubjectID, EpisodeIDs: ids, Commit: commit}, nil
}

// CollectionPatch is a partial update of a collection. Nil fields are left
// alone.
type CollectionPatch struct {
	Type      *model.CollectionType `json:"type,omitempty"`
	Rate      *int64                `json:"rate,omitempty"`
	Comment   *string               `json:"comment,omitempty"`
	Tags      []string              `json:"tags,omitempty"`
	Private   *bool                 `json:"private,omitempty"`
	EpStatus  *int64                `json:"ep_status,omitempty"`
	VolStatus *int64                `json:"vol_status,omitempty"`
}

// Fields returns the stored fields the patch sets.
func (p CollectionPatch) Fields() model.Fields {
	f := model.Fields{}
	if p.Type != nil {
		f["type"] = *p.Type
	}
	if p.Rate != nil {
		f["rate"] = *p.Rate
	}
	if p.Comment != nil {
		f["comment"] = *p.Comment
	}
	if p.Tags != nil {
		f["tags"] = p.Tags
	}
	if p.Private != nil {
		f["private"] = *p.Private
	}
	if p.EpStatus != nil {
		f["ep_status"] = *p.EpStatus
	}
	if p.VolStatus != nil {
		f["vol_status"] = *p.VolStatus
	}
	return f
}

func (p CollectionPatch) validate() error {
	if p.Rate != nil && (*p.Rate < 0 || *p.Rate > 10) {
		return fmt.Errorf("rate %d outside 0..10", *p.Rate)
	}
	if p.Type != nil && (*p.Type < model.CollectionWish || *p.Type > model.CollectionDropped) {
		return fmt.Errorf("unknown collection type %d", *p.Type)
	}
	if p.EpStatus != nil && *p.EpStatus < 0 {
		return fmt.Errorf("negative ep_status")
	}
	if p.VolStatus != nil && *p.VolStatus < 0 {
		return fmt.Errorf("negative vol_status")
	}
	return nil
}

// UpdateCollection creates or updates the user's collection of a subject.
func (c *Coordinator) UpdateCollection(ctx context.Context, subjectID int64, patch CollectionPatch) (Result, error) {
	if subjectID <= 0 {
		return Result{}, newInvalidArgument(subjectID, "subject id must be positive")
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return Result{}, newInvalidArgument(subjectID, "empty collection patch")
	}
	if err := patch.validate(); err != nil {
		return Result{}, newInvalidArgument(subjectID, "%v", err)
	}

	path := fmt.Sprintf("/v0/users/-/collections/%d", subjectID)
	if err := c.call(ctx, http.MethodPost, path, patch); err != nil {
		return Result{}, &Error{
			Code:      ErrCodeRemoteRejected,
			Message:   "post collection",
			SubjectID: subjectID,
			Err:       err,
		}
	}

	commit, err := c.commit(ctx, fmt.Sprintf("collection:%d", subjectID), func(ctx context.Context, b *store.Batch) error {
		if err := c.fillCollectionLink(ctx, b, subjectID, fields); err != nil {
			return err
		}
		fields["updated_at"] = c.now()
		_, err := b.Put(ctx, model.KindCollection, subjectID, fields)
		return err
	})
	if err != nil {
		return Result{}, c.localFailure(subjectID, nil, err)
	}
	return Result{SubjectID: subjectID, Commit: commit}, nil
}

// RemoveCollection deletes the user's collection of a subject and resets
// every episode status of that subject to none.
func (c *Coordinator) RemoveCollection(ctx context.Context, subjectID int64) (Result, error) {
	if subjectID <= 0 {
		return Result{}, newInvalidArgument(subjectID, "subject id must be positive")
	}

	path := fmt.Sprintf("/v0/users/-/collections/%d", subjectID)
	if err := c.call(ctx, http.MethodDelete, path, nil); err != nil {
		return Result{}, &Error{
			Code:      ErrCodeRemoteRejected,
			Message:   "delete collection",
			SubjectID: subjectID,
			Err:       err,
		}
	}

	var reset []int64
	commit, err := c.commit(ctx, fmt.Sprintf("uncollect:%d", subjectID), func(ctx context.Context, b *store.Batch) error {
		if _, err := b.Delete(ctx, model.KindCollection, subjectID); err != nil {
			return err
		}
		q := queryir.Query{
			Kind: model.KindEpisode,
			Filter: queryir.AllOf(
				queryir.Equals{Field: "subject_id", Value: subjectID},
				queryir.Compare{Field: "status", Op: queryir.OpNE, Value: model.StatusNone},
			),
		}
		sql, params, err := c.compiler.CompileKeys(q)
		if err != nil {
			return err
		}
		ids, err := b.IDs(ctx, sql, params)
		if err != nil {
			return err
		}
		reset = ids
		return setStatuses(ctx, b, ids, model.StatusNone)
	})
	if err != nil {
		return Result{}, c.localFailure(subjectID, nil, err)
	}
	return Result{SubjectID: subjectID, EpisodeIDs: reset, Commit: commit}, nil
}

// resolveThrough returns the IDs of the subject's episodes with sort <=
// ordinal, in display order, after checking them against a COUNT taken in
// the same snapshot.
func (c *Coordinator) resolveThrough(ctx context.Context, subjectID int64, ordinal float64, types []model.EpisodeType) ([]int64, error) {
	preds := []queryir.Predicate{
		queryir.Equals{Field: "subject_id", Value: subjectID},
		queryir.Compare{Field: "sort", Op: queryir.OpLE, Value: ordinal},
	}
	if len(types) > 0 {
		vals := make([]any, len(types))
		for i, t := range types {
			vals[i] = t
		}
		preds = append(preds, queryir.In{Field: "type", Values: vals})
	}
	q := queryir.Query{
		Kind:   model.KindEpisode,
		Filter: queryir.AllOf(preds...),
		Order:  []queryir.OrderBy{queryir.Asc("sort"), queryir.Asc("position")},
	}
	keysSQL, keysParams, err := c.compiler.CompileKeys(q)
	if err != nil {
		return nil, fmt.Errorf("resolve episodes: %w", err)
	}
	countSQL, countParams, err := c.compiler.CompileCount(q)
	if err != nil {
		return nil, fmt.Errorf("resolve episodes: %w", err)
	}

	var (
		ids []int64
		n   int64
	)
	err = c.store.View(ctx, func(v *store.Snapshot) error {
		var err error
		if ids, err = v.IDs(ctx, keysSQL, keysParams); err != nil {
			return err
		}
		n, err = v.Count(ctx, countSQL, countParams)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve episodes of subject %d: %w", subjectID, err)
	}

	if len(ids) == 0 {
		return nil, newSubjectNotFound(subjectID, "no cached episodes through %g", ordinal)
	}
	if err := checkIDSet(ids, n); err != nil {
		slog.Error("episode id set failed verification",
			"subject_id", subjectID,
			"ordinal", ordinal,
			"resolved", len(ids),
			"count", n,
		)
		return nil, &Error{
			Code:       ErrCodePartialIDSet,
			Message:    err.Error(),
			SubjectID:  subjectID,
			EpisodeIDs: ids,
		}
	}
	return ids, nil
}

// checkIDSet verifies that ids holds exactly count distinct IDs.
func checkIDSet(ids []int64, count int64) error {
	if int64(len(ids)) != count {
		return fmt.Errorf("resolved %d ids but %d rows match", len(ids), count)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("duplicate episode id %d", id)
		}
		seen[id] = true
	}
	return nil
}

// call wraps every failure so it matches remote.ErrRemoteRejected.
func (c *Coordinator) call(ctx context.Context, method, path string, body any) error {
	err := c.remote.Request(ctx, method, path, body, nil)
	if err == nil || errors.Is(err, remote.ErrRemoteRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", remote.ErrRemoteRejected, err)
}

// commit submits m with a context that ignores the caller's cancellation.
func (c *Coordinator) commit(ctx context.Context, name string, m actor.Mutation) (model.Commit, error) {
	return c.actor.Submit(context.WithoutCancel(ctx), name, m)
}

func (c *Coordinator) localFailure(subjectID int64, ids []int64, err error) error {
	slog.Error("remote accepted mutation but local apply failed",
		"subject_id", subjectID,
		"episodes", len(ids),
		"error", err,
	)
	return &Error{
		Code:       ErrCodeLocalApply,
		Message:    "apply local follow-up",
		SubjectID:  subjectID,
		EpisodeIDs: ids,
		Err:        err,
	}
}

func setStatuses(ctx context.Context, b *store.Batch, ids []int64, status model.EpisodeStatus) error {
	for _, id := range ids {
		if _, err := b.Put(ctx, model.KindEpisode, id, model.Fields{"status": status}); err != nil {
			return err
		}
	}
	return nil
}

// remoteProgress reads the collection back after an episode status write
// and returns the ep_status the remote now reports. Local statuses may be
// unsynced and are not counted. Returns nil when the subject is not
// collected locally or the read fails.
func (c *Coordinator) remoteProgress(ctx context.Context, subjectID int64) *int64 {
	ctx = context.WithoutCancel(ctx)
	if _, err := c.store.GetCollection(ctx, subjectID); err != nil {
		return nil
	}
	var col dto.UserSubjectCollection
	path := fmt.Sprintf("/v0/users/-/collections/%d", subjectID)
	if err := c.remote.Request(ctx, http.MethodGet, path, nil, &col); err != nil {
		slog.Warn("could not refresh collection progress",
			"subject_id", subjectID,
			"error", err,
		)
		return nil
	}
	return &col.EpStatus
}

// touchCollection advances updated_at and, when known, stores epStatus.
// Subjects the user has not collected locally are left alone.
func (c *Coordinator) touchCollection(ctx context.Context, b *store.Batch, subjectID int64, epStatus *int64) error {
	if _, err := b.Get(ctx, model.KindCollection, subjectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	fields := model.Fields{"updated_at": c.now()}
	if epStatus != nil {
		fields["ep_status"] = *epStatus
	}
	_, err := b.Put(ctx, model.KindCollection, subjectID, fields)
	return err
}

// fillCollectionLink adds subject_type and alias when the patch creates a
// collection whose subject is already cached.
func (c *Coordinator) fillCollectionLink(ctx context.Context, b *store.Batch, subjectID int64, fields model.Fields) error {
	if _, err := b.Get(ctx, model.KindCollection, subjectID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	f, err := b.Get(ctx, model.KindSubject, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	subj, err := model.DecodeSubject(f)
	if err != nil {
		return err
	}
	fields["subject_type"] = subj.Type
	fields["alias"] = model.SearchAlias(subj.Name, subj.NameCN, subj.Infobox)
	return nil
}
