package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzbill/taglog/internal/filter"
	"github.com/rzbill/taglog/internal/runtime"
	"github.com/rzbill/taglog/internal/taglog"
)

// LogsController exposes write, query, listen, sweep and cleanup over HTTP.
type LogsController struct {
	rt *runtime.Runtime
}

// NewLogsController creates a new logs controller.
func NewLogsController(rt *runtime.Runtime) *LogsController {
	return &LogsController{rt: rt}
}

// RegisterRoutes registers the log routes.
func (lc *LogsController) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/logs", lc.handleLog)
	r.GET("/v1/logs", lc.handleGet)
	r.DELETE("/v1/logs", lc.handleCleanup)
	r.GET("/v1/logs/latest", lc.handleLatest)
	r.GET("/v1/logs/count", lc.handleCount)
	r.GET("/v1/logs/listen", lc.handleListen)
	r.GET("/v1/records/:id", lc.handleGetByID)
	r.POST("/v1/sweep", lc.handleSweep)
}

// logger resolves the namespace named by the request (or the default) to
// its engine.
func (lc *LogsController) logger(c *gin.Context, name string) (*taglog.Logger, bool) {
	l, err := lc.rt.Logger(c.Request.Context(), lc.rt.ResolveNamespace(name))
	if err != nil {
		writeErr(c, err)
		return nil, false
	}
	return l, true
}

func (lc *LogsController) handleLog(c *gin.Context) {
	var req logReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Message) == 0 {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}
	msg, err := taglog.RawJSON(req.Message)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	l, ok := lc.logger(c, req.Namespace)
	if !ok {
		return
	}

	opts := []taglog.LogOption{taglog.WithTags(req.Tags...), taglog.WithAttrs(req.Attrs)}
	if len(req.Tagging) > 0 {
		keys := make([]string, 0, len(req.Tagging))
		for k := range req.Tagging {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ta taglog.TaggingAttributes
		for _, k := range keys {
			ta = ta.And(k, req.Tagging[k])
		}
		opts = append(opts, taglog.WithTaggingAttrs(ta))
	}
	if req.TS != nil {
		opts = append(opts, taglog.WithTimestamp(*req.TS))
	}
	switch {
	case req.ExpireAt != nil:
		opts = append(opts, taglog.WithExpireAt(*req.ExpireAt))
	case req.ExpireIn > 0:
		opts = append(opts, taglog.WithExpireIn(time.Duration(req.ExpireIn*float64(time.Second))))
	}

	rec, err := l.Log(c.Request.Context(), msg, opts...)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// query builds a Query from the URL parameters shared by list and latest.
func query(c *gin.Context) (taglog.Query, error) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return taglog.Query{}, err
	}
	minTS, err := parseTimestamp(c.Query("min_ts"))
	if err != nil {
		return taglog.Query{}, err
	}
	maxTS, err := parseTimestamp(c.Query("max_ts"))
	if err != nil {
		return taglog.Query{}, err
	}
	attr, err := parseAttr(c.Query("attr"))
	if err != nil {
		return taglog.Query{}, err
	}
	return taglog.Query{
		Tag:    c.Query("tag"),
		Attr:   attr,
		MinTS:  minTS,
		MaxTS:  maxTS,
		Limit:  limit,
		Filter: c.Query("filter"),
	}, nil
}

func (lc *LogsController) handleGet(c *gin.Context) {
	q, err := query(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	l, ok := lc.logger(c, c.Query("namespace"))
	if !ok {
		return
	}
	recs, err := l.Get(c.Request.Context(), q)
	if err != nil {
		writeErr(c, err)
		return
	}
	if recs == nil {
		recs = []taglog.Record{}
	}
	c.JSON(http.StatusOK, listResp{Namespace: l.Namespace(), Records: recs})
}

func (lc *LogsController) handleLatest(c *gin.Context) {
	q, err := query(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	l, ok := lc.logger(c, c.Query("namespace"))
	if !ok {
		return
	}
	rec, found, err := l.GetLatest(c.Request.Context(), q)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "no matching record")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (lc *LogsController) handleGetByID(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	l, ok := lc.logger(c, c.Query("namespace"))
	if !ok {
		return
	}
	rec, found, err := l.GetByID(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, fmt.Sprintf("record %d not found", id))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (lc *LogsController) handleCount(c *gin.Context) {
	l, ok := lc.logger(c, c.Query("namespace"))
	if !ok {
		return
	}
	n, err := l.Count(c.Request.Context(), c.Query("tag"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespace": l.Namespace(), "count": n})
}

func (lc *LogsController) handleCleanup(c *gin.Context) {
	l, ok := lc.logger(c, c.Query("namespace"))
	if !ok {
		return
	}
	if err := l.FullCleanup(c.Request.Context()); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (lc *LogsController) handleSweep(c *gin.Context) {
	var req sweepReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	now := time.Now()
	if req.Now != nil {
		now = *req.Now
	}
	ctx := c.Request.Context()

	if req.Namespace == "" {
		results, err := lc.rt.SweepAll(ctx, now)
		if err != nil {
			writeErr(c, err)
			return
		}
		names := make([]string, 0, len(results))
		for ns := range results {
			names = append(names, ns)
		}
		sort.Strings(names)
		out := make([]sweepResp, 0, len(names))
		for _, ns := range names {
			out = append(out, newSweepResp(ns, results[ns]))
		}
		c.JSON(http.StatusOK, gin.H{"results": out})
		return
	}

	res, err := lc.rt.Sweep(ctx, req.Namespace, now)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": []sweepResp{newSweepResp(req.Namespace, res)}})
}

// handleListen streams records as they are written. A "ready" event is sent
// once the subscription is live; each record follows as a "record" event.
func (lc *LogsController) handleListen(c *gin.Context) {
	expr := c.Query("filter")
	if _, err := filter.Compile(expr); err != nil {
		writeErr(c, fmt.Errorf("%w: %w", taglog.ErrInvalidQuery, err))
		return
	}
	l, ok := lc.logger(c, c.Query("namespace"))
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sub, err := l.Subscribe(ctx, taglog.OnlyTag(c.Query("tag")), taglog.MatchFilter(expr))
	if err != nil {
		writeErr(c, err)
		return
	}
	defer sub.Close()

	sink, ok := newSSESink(c)
	if !ok {
		writeError(c, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if err := sink.Send("ready", gin.H{"namespace": l.Namespace()}); err != nil {
		return
	}
	err = sub.Listen(ctx, func(r taglog.Record) error {
		return sink.Send("record", r)
	})
	if err != nil && !errors.Is(err, ctx.Err()) {
		_ = sink.Send("error", gin.H{"error": err.Error(), "dropped": sub.Dropped()})
	}
}
