package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/store"
)

// ErrStopped is returned by Submit once the actor no longer accepts units.
var ErrStopped = errors.New("write actor stopped")

// Result describes a committed unit.
type Result = model.Commit

// Notifier receives every commit that changed at least one entity. Publish
// is called from the Run goroutine after the batch is durable; it must not
// block.
type Notifier interface {
	Publish(c model.Commit)
}

// Actor serializes all writes to one store.
type Actor struct {
	store    *store.Store
	seq      atomic.Int64 // last committed sequence; written only by Run
	ids      IDGenerator
	notifier Notifier
	queue    *unitQueue
}

// Option configures an Actor.
type Option func(*Actor)

// WithNotifier sets the commit listener.
func WithNotifier(n Notifier) Option {
	return func(a *Actor) { a.notifier = n }
}

// WithStartSeq makes the first commit stamped seq+1.
func WithStartSeq(seq int64) Option {
	return func(a *Actor) { a.seq.Store(seq) }
}

// WithIDGenerator sets the batch ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(a *Actor) { a.ids = g }
}

// New creates an actor writing to s. Call Run to start processing.
func New(s *store.Store, opts ...Option) *Actor {
	a := &Actor{
		store: s,
		ids:   UUIDv7Generator{},
		queue: newUnitQueue(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Submit enqueues a unit and waits for it to commit or fail.
//
// If ctx ends while the unit is still queued, the unit is skipped. If ctx
// ends while the unit is running, the unit sees the cancellation through its
// own ctx. Callers that must not be cancelled once started should pass
// context.WithoutCancel.
func (a *Actor) Submit(ctx context.Context, name string, m Mutation) (Result, error) {
	req := &request{
		ctx:      ctx,
		name:     name,
		mutation: m,
		done:     make(chan reply, 1),
	}
	if !a.queue.Enqueue(req) {
		return Result{}, ErrStopped
	}

	select {
	case r := <-req.done:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Run starts the single-writer loop.
// Blocks until ctx is cancelled or Stop() is called and the queue drains.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (a *Actor) Run(ctx context.Context) error {
	slog.Info("write actor starting")

	for {
		if req, ok := a.queue.TryDequeue(); ok {
			a.process(req)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("write actor stopping: context cancelled")
			a.queue.Close()
			a.failPending(ErrStopped)
			return ctx.Err()

		case <-a.queue.Wait():
			if a.queue.Drained() {
				slog.Info("write actor stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop stops accepting units. Units already queued still run.
func (a *Actor) Stop() {
	a.queue.Close()
}

// Seq returns the sequence number of the last commit.
func (a *Actor) Seq() int64 {
	return a.seq.Load()
}

func (a *Actor) failPending(err error) {
	for {
		req, ok := a.queue.TryDequeue()
		if !ok {
			return
		}
		req.done <- reply{err: err}
	}
}

// process runs one unit and replies to its submitter.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (a *Actor) process(req *request) {
	if err := req.ctx.Err(); err != nil {
		slog.Debug("unit skipped", "name", req.name, "error", err)
		req.done <- reply{err: err}
		return
	}

	res, err := a.apply(req)
	if err != nil {
		slog.Warn("unit failed", "name", req.name, "error", err)
	}
	req.done <- reply{result: res, err: err}
}

func (a *Actor) apply(req *request) (res Result, err error) {
	b, err := a.store.Begin(req.ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", req.name, err)
	}
	defer func() {
		if r := recover(); r != nil {
			b.Rollback()
			slog.Error("unit panicked", "name", req.name, "panic", r)
			res, err = Result{}, fmt.Errorf("%s: panic: %v", req.name, r)
		}
	}()

	if err := req.mutation(req.ctx, b); err != nil {
		if rbErr := b.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "name", req.name, "error", rbErr)
		}
		return Result{}, fmt.Errorf("%s: %w", req.name, err)
	}

	changes, err := b.Commit()
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", req.name, err)
	}

	res = Result{
		BatchID: a.ids.Generate(),
		Seq:     a.seq.Add(1),
		Name:    req.name,
		Changes: changes,
	}
	if changes == nil {
		res.Changes = []model.Change{}
	}

	slog.Info("batch committed",
		"name", res.Name,
		"batch_id", res.BatchID,
		"seq", res.Seq,
		"changes", len(res.Changes),
	)

	if a.notifier != nil && len(res.Changes) > 0 {
		a.notifier.Publish(res)
	}
	return res, nil
}
