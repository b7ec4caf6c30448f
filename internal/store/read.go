package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/chii/internal/model"
)

// Get returns the stored fields of one entity from the reader pool.
// Returns ErrNotFound if no row exists.
func (s *Store) Get(ctx context.Context, kind model.Kind, id int64) (model.Fields, error) {
	return getFields(ctx, s.ro, kind, id)
}

// QueryFields runs a compiled SELECT on the reader pool.
func (s *Store) QueryFields(ctx context.Context, kind model.Kind, query string, args []any) ([]model.Fields, error) {
	return queryFields(ctx, s.ro, kind, query, args)
}

// Count runs a compiled COUNT on the reader pool.
func (s *Store) Count(ctx context.Context, query string, args []any) (int64, error) {
	return count(ctx, s.ro, query, args)
}

// GetSubject returns one subject.
func (s *Store) GetSubject(ctx context.Context, id int64) (model.Subject, error) {
	f, err := s.Get(ctx, model.KindSubject, id)
	if err != nil {
		return model.Subject{}, err
	}
	return model.DecodeSubject(f)
}

// GetEpisode returns one episode.
func (s *Store) GetEpisode(ctx context.Context, id int64) (model.Episode, error) {
	f, err := s.Get(ctx, model.KindEpisode, id)
	if err != nil {
		return model.Episode{}, err
	}
	return model.DecodeEpisode(f), nil
}

// GetCollection returns the user's collection of one subject.
func (s *Store) GetCollection(ctx context.Context, subjectID int64) (model.Collection, error) {
	f, err := s.Get(ctx, model.KindCollection, subjectID)
	if err != nil {
		return model.Collection{}, err
	}
	return model.DecodeCollection(f)
}

// GetCharacter returns one character.
func (s *Store) GetCharacter(ctx context.Context, id int64) (model.Character, error) {
	f, err := s.Get(ctx, model.KindCharacter, id)
	if err != nil {
		return model.Character{}, err
	}
	return model.DecodeCharacter(f)
}

// GetPerson returns one person.
func (s *Store) GetPerson(ctx context.Context, id int64) (model.Person, error) {
	f, err := s.Get(ctx, model.KindPerson, id)
	if err != nil {
		return model.Person{}, err
	}
	return model.DecodePerson(f)
}

// GetGroup returns one group.
func (s *Store) GetGroup(ctx context.Context, id int64) (model.Group, error) {
	f, err := s.Get(ctx, model.KindGroup, id)
	if err != nil {
		return model.Group{}, err
	}
	return model.DecodeGroup(f), nil
}

// LoadDraft returns the draft saved for purpose.
// Returns ErrNotFound if none exists.
func (s *Store) LoadDraft(ctx context.Context, purpose string) (model.Draft, error) {
	var (
		d  model.Draft
		ts int64
	)
	err := s.ro.QueryRowContext(ctx,
		`SELECT purpose, content, updated_at FROM drafts WHERE purpose = ?`, purpose,
	).Scan(&d.Purpose, &d.Content, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Draft{}, fmt.Errorf("%w: draft %q", ErrNotFound, purpose)
	}
	if err != nil {
		return model.Draft{}, fmt.Errorf("load draft %q: %w", purpose, err)
	}
	d.UpdatedAt = time.Unix(ts, 0).UTC()
	return d, nil
}

// Snapshot is a read-only transaction. Every read through one Snapshot sees
// the same committed state.
type Snapshot struct {
	tx *sql.Tx
}

// View runs fn inside one read snapshot on the reader pool.
func (s *Store) View(ctx context.Context, fn func(*Snapshot) error) error {
	tx, err := s.ro.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer tx.Rollback()

	return fn(&Snapshot{tx: tx})
}

// Get reads one entity in the snapshot.
func (v *Snapshot) Get(ctx context.Context, kind model.Kind, id int64) (model.Fields, error) {
	return getFields(ctx, v.tx, kind, id)
}

// QueryFields runs a compiled SELECT in the snapshot.
func (v *Snapshot) QueryFields(ctx context.Context, kind model.Kind, query string, args []any) ([]model.Fields, error) {
	return queryFields(ctx, v.tx, kind, query, args)
}

// Count runs a compiled COUNT in the snapshot.
func (v *Snapshot) Count(ctx context.Context, query string, args []any) (int64, error) {
	return count(ctx, v.tx, query, args)
}

// IDs runs a query returning one integer column in the snapshot.
func (v *Snapshot) IDs(ctx context.Context, query string, args []any) ([]int64, error) {
	return queryInts(ctx, v.tx, query, args)
}
