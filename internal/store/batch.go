package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/chii/internal/model"
)

// Batch is one write transaction on the writer connection.
//
// A Batch is not safe for concurrent use. Changes made to the same entity
// more than once are merged into a single Change.
type Batch struct {
	tx      *sql.Tx
	changes []model.Change
	index   map[entityKey]int
	done    bool
}

type entityKey struct {
	kind model.Kind
	id   int64
}

// Begin starts a write batch.
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Batch{tx: tx, index: make(map[entityKey]int)}, nil
}

// Get reads an entity inside the batch, seeing the batch's own writes.
func (b *Batch) Get(ctx context.Context, kind model.Kind, id int64) (model.Fields, error) {
	return getFields(ctx, b.tx, kind, id)
}

// Put creates the entity if absent, otherwise updates only the provided
// fields whose normalized value differs from the stored one.
//
// The key field may appear in fields only if it equals id.
func (b *Batch) Put(ctx context.Context, kind model.Kind, id int64, fields model.Fields) (model.Change, error) {
	s, err := schemaFor(kind, id)
	if err != nil {
		return model.Change{}, err
	}

	values := make(map[string]any, len(fields))
	for name, raw := range fields {
		t, ok := s.FieldType(name)
		if !ok {
			return model.Change{}, fmt.Errorf("%w: %s has no field %q", ErrInvalidKey, kind, name)
		}
		v, err := model.Normalize(t, raw)
		if err != nil {
			return model.Change{}, fmt.Errorf("put %s %d: field %s: %w", kind, id, name, err)
		}
		if name == s.Key {
			if v != id {
				return model.Change{}, fmt.Errorf("%w: %s key field %v does not match id %d", ErrInvalidKey, kind, v, id)
			}
			continue
		}
		values[name] = v
	}

	current, err := getFields(ctx, b.tx, kind, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return b.insert(ctx, s, id, values)
	case err != nil:
		return model.Change{}, err
	}

	var changed []string
	for name, v := range values {
		if !model.Equal(current[name], v) {
			changed = append(changed, name)
		}
	}
	if len(changed) == 0 {
		return model.Change{Kind: kind, ID: id}, nil
	}
	sort.Strings(changed)

	sets := make([]string, len(changed))
	args := make([]any, 0, len(changed)+1)
	for i, name := range changed {
		sets[i] = name + " = ?"
		args = append(args, values[name])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", s.Table, strings.Join(sets, ", "), s.Key)
	if _, err := b.tx.ExecContext(ctx, query, args...); err != nil {
		return model.Change{}, fmt.Errorf("update %s %d: %w", kind, id, mapError(err))
	}

	c := model.Change{Kind: kind, ID: id, Fields: changed}
	b.record(c)
	return c, nil
}

func (b *Batch) insert(ctx context.Context, s model.Schema, id int64, values map[string]any) (model.Change, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := append([]string{s.Key}, names...)
	args := make([]any, 0, len(cols))
	args = append(args, id)
	for _, name := range names {
		args = append(args, values[name])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := b.tx.ExecContext(ctx, query, args...); err != nil {
		return model.Change{}, fmt.Errorf("insert %s %d: %w", s.Kind, id, mapError(err))
	}

	c := model.Change{Kind: s.Kind, ID: id, Created: true, Fields: names}
	b.record(c)
	return c, nil
}

// Delete removes an entity. Deleting an absent entity is a no-op and
// returns an empty Change.
func (b *Batch) Delete(ctx context.Context, kind model.Kind, id int64) (model.Change, error) {
	s, err := schemaFor(kind, id)
	if err != nil {
		return model.Change{}, err
	}
	res, err := b.tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", s.Table, s.Key), id)
	if err != nil {
		return model.Change{}, fmt.Errorf("delete %s %d: %w", kind, id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Change{}, fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	if n == 0 {
		return model.Change{Kind: kind, ID: id}, nil
	}
	c := model.Change{Kind: kind, ID: id, Deleted: true}
	b.record(c)
	return c, nil
}

// QueryFields runs a compiled SELECT inside the batch.
func (b *Batch) QueryFields(ctx context.Context, kind model.Kind, query string, args []any) ([]model.Fields, error) {
	return queryFields(ctx, b.tx, kind, query, args)
}

// Count runs a compiled COUNT inside the batch.
func (b *Batch) Count(ctx context.Context, query string, args []any) (int64, error) {
	return count(ctx, b.tx, query, args)
}

// IDs runs a query returning one integer column inside the batch.
func (b *Batch) IDs(ctx context.Context, query string, args []any) ([]int64, error) {
	return queryInts(ctx, b.tx, query, args)
}

// SaveDraft creates or replaces the draft for purpose.
func (b *Batch) SaveDraft(ctx context.Context, purpose, content string, at time.Time) error {
	if purpose == "" {
		return fmt.Errorf("%w: empty draft purpose", ErrInvalidKey)
	}
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO drafts (purpose, content, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(purpose) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, purpose, content, at.Unix())
	if err != nil {
		return fmt.Errorf("save draft %q: %w", purpose, mapError(err))
	}
	return nil
}

// DeleteDraft removes the draft for purpose, if any.
func (b *Batch) DeleteDraft(ctx context.Context, purpose string) error {
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM drafts WHERE purpose = ?`, purpose); err != nil {
		return fmt.Errorf("delete draft %q: %w", purpose, err)
	}
	return nil
}

// Changes returns the non-empty changes recorded so far, in first-touch order.
func (b *Batch) Changes() []model.Change {
	out := make([]model.Change, len(b.changes))
	copy(out, b.changes)
	return out
}

// Commit makes the batch visible to readers and returns its changes.
func (b *Batch) Commit() ([]model.Change, error) {
	if b.done {
		return nil, errors.New("batch already finished")
	}
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", mapError(err))
	}
	return b.changes, nil
}

// Rollback discards the batch. Safe to call after Commit.
func (b *Batch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

// record merges c into the batch's change list.
func (b *Batch) record(c model.Change) {
	key := entityKey{c.Kind, c.ID}
	i, ok := b.index[key]
	if !ok {
		b.index[key] = len(b.changes)
		b.changes = append(b.changes, c)
		return
	}

	prev := b.changes[i]
	if c.Deleted {
		prev.Deleted = true
		prev.Fields = nil
		b.changes[i] = prev
		return
	}
	prev.Created = prev.Created || c.Created
	prev.Deleted = false
	prev.Fields = mergeNames(prev.Fields, c.Fields)
	b.changes[i] = prev
}

func mergeNames(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
