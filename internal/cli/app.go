package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/chii/internal/actor"
	"github.com/roach88/chii/internal/cascade"
	"github.com/roach88/chii/internal/config"
	"github.com/roach88/chii/internal/notify"
	"github.com/roach88/chii/internal/remote"
	"github.com/roach88/chii/internal/store"
	"github.com/roach88/chii/internal/surface"
	"github.com/roach88/chii/internal/syncer"
)

// Backend is the remote API used for syncs and cascades.
type Backend interface {
	remote.Pager
	remote.Requester
}

// app is one opened cache with its write actor running.
type app struct {
	cfg     config.Config
	store   *store.Store
	actor   *actor.Actor
	hub     *notify.Hub
	surface *surface.Surface
	driver  *syncer.Driver
	coord   *cascade.Coordinator

	cancel context.CancelFunc
	done   chan struct{}
}

func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg := opts.cfg
	if err := cfg.EnsureDir(); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
	}

	slog.Debug("opening cache", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath,
		store.WithReadConns(cfg.ReadConns),
		store.WithMaxPages(cfg.MaxPages),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	hub := notify.NewHub()
	a := actor.New(st, actor.WithNotifier(hub))

	// The actor outlives command cancellation so units already accepted
	// still commit; close drains it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("write actor stopped", "error", err)
		}
	}()

	var backend Backend = opts.Backend
	if backend == nil {
		backend = remote.NewClient(cfg.APIURL,
			remote.WithToken(cfg.Token),
			remote.WithUserAgent(cfg.UserAgent),
			remote.WithTimeout(cfg.Timeout.Duration),
		)
	}

	return &app{
		cfg:     cfg,
		store:   st,
		actor:   a,
		hub:     hub,
		surface: surface.New(st),
		driver: syncer.New(a, backend, backend,
			syncer.WithPageSize(int64(cfg.PageSize)),
			syncer.WithUsername(cfg.Username),
		),
		coord:  cascade.New(a, st, backend),
		cancel: cancel,
		done:   done,
	}, nil
}

// close drains the actor, then releases the store.
func (a *app) close() {
	a.actor.Stop()
	<-a.done
	a.cancel()
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
