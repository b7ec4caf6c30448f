// Package syncer drives paginated remote lists into the local store.
//
// Each page becomes one write actor unit, so a sync interrupted between
// pages leaves every page committed so far in place and readers never see a
// half-applied page.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/roach88/chii/internal/actor"
	"github.com/roach88/chii/internal/dto"
	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/reconcile"
	"github.com/roach88/chii/internal/remote"
	"github.com/roach88/chii/internal/store"
)

// DefaultPageSize is the limit requested per page.
const DefaultPageSize = 30

// Stop reasons reported in Stats.
const (
	StopEmptyPage = "empty page"
	StopShortPage = "short page"
	StopTotal     = "total reached"
	StopUnpaged   = "unpaged response"
)

// Stats summarizes one sync run.
type Stats struct {
	Pages   int    `json:"pages"`
	Items   int    `json:"items"`
	Changes int    `json:"changes"`
	Total   int64  `json:"total"`
	Reason  string `json:"reason,omitempty"`
}

// FetchFunc fetches the page starting at offset.
type FetchFunc func(ctx context.Context, offset, limit int64) (dto.Page[json.RawMessage], error)

// ApplyFunc reconciles one decoded item.
type ApplyFunc[T any] func(ctx context.Context, r *reconcile.Reconciler, item T) error

// Driver runs syncs against one remote and one write actor.
type Driver struct {
	actor     *actor.Actor
	pager     remote.Pager
	requester remote.Requester
	pageSize  int64
	username  string
}

// Option configures a Driver.
type Option func(*Driver)

// WithPageSize sets the limit requested per page.
func WithPageSize(n int64) Option {
	return func(d *Driver) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

// WithUsername sets the default user for collection syncs.
func WithUsername(name string) Option {
	return func(d *Driver) { d.username = name }
}

// New creates a Driver.
func New(a *actor.Actor, p remote.Pager, r remote.Requester, opts ...Option) *Driver {
	d := &Driver{
		actor:     a,
		pager:     p,
		requester: r,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SyncAll pages through fetch from offset 0, applying each page as one actor
// unit.
//
// The loop stops on an empty page, on a page shorter than the limit, or once
// the offset reaches the reported total, unless more rows than that total
// have already arrived (a stale total is ignored). A response that ignores
// the requested window, by returning more rows than the limit or by not
// echoing the offset, is treated as the whole list. ctx is checked before
// every fetch. A failed fetch or unit aborts the loop; pages already
// committed stay committed.
func SyncAll[T any](ctx context.Context, d *Driver, name string, fetch FetchFunc, apply ApplyFunc[T]) (Stats, error) {
	var (
		stats  Stats
		offset int64
		seen   int64
	)
	limit := d.pageSize

	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("%s: %w", name, err)
		}

		raw, err := fetch(ctx, offset, limit)
		if err != nil {
			return stats, fmt.Errorf("%s: fetch offset %d: %w", name, offset, err)
		}
		page, err := dto.DecodePage[T](raw)
		if err != nil {
			return stats, fmt.Errorf("%s: %w", name, err)
		}
		stats.Total = page.Total

		if offset > 0 && page.Offset != offset {
			stats.Reason = StopUnpaged
			break
		}
		if len(page.Data) == 0 {
			stats.Reason = StopEmptyPage
			break
		}

		unit := fmt.Sprintf("%s@%d", name, offset)
		res, err := d.actor.Submit(ctx, unit, func(ctx context.Context, b *store.Batch) error {
			r := reconcile.New(b)
			for _, item := range page.Data {
				if err := apply(ctx, r, item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("%s: apply offset %d: %w", name, offset, err)
		}

		n := int64(len(page.Data))
		stats.Pages++
		stats.Items += len(page.Data)
		stats.Changes += len(res.Changes)
		seen += n
		offset += limit

		slog.Info("sync page committed",
			"name", name,
			"offset", offset-limit,
			"items", n,
			"changes", len(res.Changes),
			"total", page.Total,
		)

		if n > limit {
			stats.Reason = StopUnpaged
			break
		}
		if n < limit {
			stats.Reason = StopShortPage
			break
		}
		if offset >= page.Total && seen <= page.Total {
			stats.Reason = StopTotal
			break
		}
	}

	slog.Info("sync finished",
		"name", name,
		"pages", stats.Pages,
		"items", stats.Items,
		"changes", stats.Changes,
		"reason", stats.Reason,
	)
	return stats, nil
}

func (d *Driver) pages(endpoint string, params url.Values) FetchFunc {
	return func(ctx context.Context, offset, limit int64) (dto.Page[json.RawMessage], error) {
		return d.pager.FetchPage(ctx, endpoint, params, offset, limit)
	}
}

// CollectionFilter narrows a collection sync. Zero values mean "all".
type CollectionFilter struct {
	Username    string
	SubjectType model.SubjectType
	Type        model.CollectionType
}

// SyncCollections pulls the user's subject collections.
func (d *Driver) SyncCollections(ctx context.Context, f CollectionFilter) (Stats, error) {
	username := f.Username
	if username == "" {
		username = d.username
	}
	if username == "" {
		return Stats{}, fmt.Errorf("sync collections: no username configured")
	}

	params := url.Values{}
	if f.SubjectType != 0 {
		params.Set("subject_type", strconv.Itoa(int(f.SubjectType)))
	}
	if f.Type != 0 {
		params.Set("type", strconv.Itoa(int(f.Type)))
	}
	endpoint := "/v0/users/" + url.PathEscape(username) + "/collections"

	return SyncAll(ctx, d, "collections", d.pages(endpoint, params),
		func(ctx context.Context, r *reconcile.Reconciler, c dto.UserSubjectCollection) error {
			_, err := r.EnsureCollection(ctx, c)
			return err
		})
}

// SyncEpisodeStatuses pulls the user's per-episode watch status for one
// subject.
func (d *Driver) SyncEpisodeStatuses(ctx context.Context, subjectID int64) (Stats, error) {
	endpoint := fmt.Sprintf("/v0/users/-/collections/%d/episodes", subjectID)
	name := fmt.Sprintf("episode-statuses:%d", subjectID)

	return SyncAll(ctx, d, name, d.pages(endpoint, nil),
		func(ctx context.Context, r *reconcile.Reconciler, c dto.UserEpisodeCollection) error {
			if c.Episode.SubjectID == 0 {
				c.Episode.SubjectID = subjectID
			}
			_, err := r.EnsureEpisodeCollection(ctx, c)
			return err
		})
}

// SyncEpisodes pulls the episode list of one subject.
func (d *Driver) SyncEpisodes(ctx context.Context, subjectID int64) (Stats, error) {
	params := url.Values{"subject_id": {strconv.FormatInt(subjectID, 10)}}
	name := fmt.Sprintf("episodes:%d", subjectID)

	return SyncAll(ctx, d, name, d.pages("/v0/episodes", params),
		func(ctx context.Context, r *reconcile.Reconciler, e dto.Episode) error {
			if e.SubjectID == 0 {
				e.SubjectID = subjectID
			}
			_, err := r.EnsureEpisode(ctx, e)
			return err
		})
}

// SyncSubject pulls one subject with its character and person lists and
// applies all of them in one unit.
func (d *Driver) SyncSubject(ctx context.Context, subjectID int64) (Stats, error) {
	base := fmt.Sprintf("/v0/subjects/%d", subjectID)

	var subject dto.Subject
	if err := d.requester.Request(ctx, http.MethodGet, base, nil, &subject); err != nil {
		return Stats{}, fmt.Errorf("sync subject %d: %w", subjectID, err)
	}
	var characters []dto.RelatedCharacter
	if err := d.requester.Request(ctx, http.MethodGet, base+"/characters", nil, &characters); err != nil {
		return Stats{}, fmt.Errorf("sync subject %d characters: %w", subjectID, err)
	}
	var persons []dto.RelatedPerson
	if err := d.requester.Request(ctx, http.MethodGet, base+"/persons", nil, &persons); err != nil {
		return Stats{}, fmt.Errorf("sync subject %d persons: %w", subjectID, err)
	}

	srcs := make([]dto.Source, 0, 1+len(characters)+len(persons))
	srcs = append(srcs, subject)
	for _, c := range characters {
		c.SubjectID = subjectID
		srcs = append(srcs, c)
	}
	for _, p := range persons {
		p.SubjectID = subjectID
		srcs = append(srcs, p)
	}

	res, err := d.actor.Submit(ctx, fmt.Sprintf("subject:%d", subjectID), func(ctx context.Context, b *store.Batch) error {
		_, err := reconcile.New(b).EnsureMany(ctx, srcs)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("sync subject %d: %w", subjectID, err)
	}
	return Stats{Pages: 1, Items: len(srcs), Changes: len(res.Changes), Total: int64(len(srcs))}, nil
}
