// Package api serves the local cache over HTTP with gin: read queries,
// remote-first writes, sync triggers and a websocket commit stream.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/chii/internal/apperr"
	"github.com/roach88/chii/internal/cascade"
	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/notify"
	"github.com/roach88/chii/internal/surface"
	"github.com/roach88/chii/internal/syncer"
)

// Server routes HTTP requests to the read surface, the cascade coordinator
// and the sync driver.
type Server struct {
	surface *surface.Surface
	coord   *cascade.Coordinator
	driver  *syncer.Driver
	hub     *notify.Hub
	logger  *slog.Logger
}

// New creates a Server. hub may be nil, which disables /ws.
func New(s *surface.Surface, c *cascade.Coordinator, d *syncer.Driver, hub *notify.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{surface: s, coord: c, driver: d, hub: hub, logger: logger}
}

// Handler returns the full router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/healthz", s.health)
	if s.hub != nil {
		r.GET("/ws", notify.WSHandler(s.hub))
	}
	s.RegisterRoutes(r.Group("/v0"))
	return r
}

// RegisterRoutes mounts the /v0 routes on rg.
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/subjects/:id", s.getSubject)
	rg.GET("/subjects/:id/episodes", s.listEpisodes)
	rg.GET("/subjects/:id/episodes/count", s.countEpisodes)
	rg.GET("/subjects/:id/episodes/remaining", s.remainingEpisodes)
	rg.POST("/subjects/:id/watched-through", s.watchedThrough)

	rg.GET("/episodes/:id", s.getEpisode)
	rg.PUT("/episodes/:id/status", s.setEpisodeStatus)

	rg.GET("/characters/:id", s.getCharacter)
	rg.GET("/persons/:id", s.getPerson)

	rg.GET("/collections", s.listCollections)
	rg.GET("/collections/:subject_id", s.getCollection)
	rg.POST("/collections/:subject_id", s.updateCollection)
	rg.DELETE("/collections/:subject_id", s.removeCollection)

	rg.POST("/sync/collections", s.syncCollections)
	rg.POST("/sync/subjects/:id", s.syncSubject)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.hub != nil {
		st := s.hub.Stats()
		resp["subscribers"] = st.Subscribers
		resp["ws_clients"] = st.WSClients
		resp["dropped"] = st.Dropped
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getSubject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	subj, err := s.surface.Subject(c.Request.Context(), id)
	found(c, subj, err)
}

func (s *Server) getEpisode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ep, err := s.surface.Episode(c.Request.Context(), id)
	found(c, ep, err)
}

func (s *Server) getCharacter(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ch, err := s.surface.Character(c.Request.Context(), id)
	found(c, ch, err)
}

func (s *Server) getPerson(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := s.surface.Person(c.Request.Context(), id)
	found(c, p, err)
}

func (s *Server) getCollection(c *gin.Context) {
	id, ok := pathID(c, "subject_id")
	if !ok {
		return
	}
	col, err := s.surface.Collection(c.Request.Context(), id)
	found(c, col, err)
}

func (s *Server) episodeFilter(c *gin.Context) (surface.EpisodeFilter, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return surface.EpisodeFilter{}, false
	}
	f := surface.EpisodeFilter{SubjectID: id}
	for _, raw := range splitList(c.Query("type")) {
		t, err := model.ParseEpisodeType(raw)
		if err != nil {
			badRequest(c, err.Error())
			return f, false
		}
		f.Types = append(f.Types, t)
	}
	for _, raw := range splitList(c.Query("status")) {
		st, err := model.ParseEpisodeStatus(raw)
		if err != nil {
			badRequest(c, err.Error())
			return f, false
		}
		f.Statuses = append(f.Statuses, st)
	}
	return f, true
}

func (s *Server) listEpisodes(c *gin.Context) {
	f, ok := s.episodeFilter(c)
	if !ok {
		return
	}
	order := surface.EpisodesBySort
	switch c.DefaultQuery("order", "sort") {
	case "sort":
	case "-sort":
		order = surface.EpisodesBySortDesc
	default:
		badRequest(c, "order must be sort or -sort")
		return
	}

	limit := surface.ClampLimit(parseInt(c.Query("limit"), surface.DefaultLimit))
	offset := max(parseInt(c.Query("offset"), 0), 0)
	ctx := c.Request.Context()

	items, err := s.surface.Episodes(ctx, f, order, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	total, err := s.surface.CountEpisodes(ctx, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (s *Server) countEpisodes(c *gin.Context) {
	f, ok := s.episodeFilter(c)
	if !ok {
		return
	}
	n, err := s.surface.CountEpisodes(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *Server) remainingEpisodes(c *gin.Context) {
	f, ok := s.episodeFilter(c)
	if !ok {
		return
	}
	n, err := s.surface.RemainingEpisodes(c.Request.Context(), f.SubjectID, f.Types...)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": n})
}

func (s *Server) listCollections(c *gin.Context) {
	var f surface.CollectionFilter
	if raw := c.Query("subject_type"); raw != "" {
		t, err := model.ParseSubjectType(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.SubjectType = t
	}
	if raw := c.Query("type"); raw != "" {
		t, err := model.ParseCollectionType(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.Type = t
	}
	f.Search = c.Query("q")

	order := surface.CollectionsByRecency
	switch c.DefaultQuery("order", "recent") {
	case "recent":
	case "rating":
		order = surface.CollectionsByRating
	default:
		badRequest(c, "order must be recent or rating")
		return
	}

	limit := surface.ClampLimit(parseInt(c.Query("limit"), surface.DefaultLimit))
	offset := max(parseInt(c.Query("offset"), 0), 0)
	ctx := c.Request.Context()

	items, err := s.surface.Collections(ctx, f, order, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	total, err := s.surface.CountCollections(ctx, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

type watchedThroughReq struct {
	Ordinal *float64 `json:"ordinal"`
	Status  string   `json:"status"`
	Types   []string `json:"types"`
}

func (s *Server) watchedThrough(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req watchedThroughReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Ordinal == nil {
		badRequest(c, "ordinal required")
		return
	}

	opts := cascade.Watched()
	if req.Status != "" {
		st, err := model.ParseEpisodeStatus(req.Status)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		opts.Status = st
	}
	for _, raw := range req.Types {
		t, err := model.ParseEpisodeType(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		opts.Types = append(opts.Types, t)
	}

	res, err := s.coord.MarkWatchedThrough(c.Request.Context(), id, *req.Ordinal, opts)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type episodeStatusReq struct {
	Status string `json:"status"`
}

func (s *Server) setEpisodeStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req episodeStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	st, err := model.ParseEpisodeStatus(strings.TrimSpace(req.Status))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := s.coord.MarkWatchedSingle(c.Request.Context(), id, st)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) updateCollection(c *gin.Context) {
	id, ok := pathID(c, "subject_id")
	if !ok {
		return
	}
	var patch cascade.CollectionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid json")
		return
	}
	res, err := s.coord.UpdateCollection(c.Request.Context(), id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) removeCollection(c *gin.Context) {
	id, ok := pathID(c, "subject_id")
	if !ok {
		return
	}
	res, err := s.coord.RemoveCollection(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) syncCollections(c *gin.Context) {
	var f syncer.CollectionFilter
	f.Username = c.Query("username")
	if raw := c.Query("subject_type"); raw != "" {
		t, err := model.ParseSubjectType(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.SubjectType = t
	}
	if raw := c.Query("type"); raw != "" {
		t, err := model.ParseCollectionType(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.Type = t
	}
	stats, err := s.driver.SyncCollections(c.Request.Context(), f)
	if err != nil {
		failWithStats(c, err, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) syncSubject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	subject, err := s.driver.SyncSubject(ctx, id)
	if err != nil {
		failWithStats(c, err, subject)
		return
	}
	resp := gin.H{"subject": subject}
	if c.Query("episodes") != "false" {
		eps, err := s.driver.SyncEpisodes(ctx, id)
		if err != nil {
			failWithStats(c, err, eps)
			return
		}
		resp["episodes"] = eps
	}
	if c.Query("statuses") == "true" {
		st, err := s.driver.SyncEpisodeStatuses(ctx, id)
		if err != nil {
			failWithStats(c, err, st)
			return
		}
		resp["statuses"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// found writes v, or 404 when the entity is not cached.
func found[T any](c *gin.Context, v *T, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not cached"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func fail(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": apperr.UserMessage(err),
		"code":  apperr.Code(err),
	})
}

// failWithStats keeps the partial progress of a sync that stopped early.
func failWithStats(c *gin.Context, err error, stats syncer.Stats) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": apperr.UserMessage(err),
		"code":  apperr.Code(err),
		"stats": stats,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.CodeInvalid})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
