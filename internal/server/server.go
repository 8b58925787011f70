// Package server exposes the engine to the presentation layer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/agenthands/argus/internal/core"
	"github.com/agenthands/argus/internal/core/graph"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/ingest"
	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultMaxBodyBytes caps POST /ingest payloads.
	DefaultMaxBodyBytes = 32 << 20

	// statusClientClosedRequest reports a request abandoned by the caller. net/http has no
	// name for it; 499 is the code proxies log for the same condition.
	statusClientClosedRequest = 499
)

type Server struct {
	Engine *core.Engine
	// Trigger asks for a structural refresh after an ingest. May be nil.
	Trigger      func()
	MaxBodyBytes int64
}

func NewServer(engine *core.Engine, trigger func()) *Server {
	return &Server{Engine: engine, Trigger: trigger, MaxBodyBytes: DefaultMaxBodyBytes}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/query", s.Query)
	r.POST("/ingest", s.Ingest)
	r.POST("/recompute", s.Recompute)
	r.GET("/entities/:id/neighbors", s.Neighbors)
	r.GET("/stats", s.Stats)
	r.GET("/graph/filter", s.Filter)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

func (s *Server) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	resp, err := s.Engine.Answer(c.Request.Context(), req.Query)
	if err != nil {
		logger.Warn("query failed", "err", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Ingest accepts one ExtractionBatch as JSON, in the same wire format the broker carries.
func (s *Server) Ingest(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.IngestBatchesTotal.WithLabelValues("http", "rejected").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("batch exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	batch, err := ingest.Decode(body)
	if err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("http", "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.Engine.Apply(c.Request.Context(), batch)
	if err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("http", "failed").Inc()
		logger.Warn("ingest failed", "err", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "applied": res})
		return
	}
	metrics.IngestBatchesTotal.WithLabelValues("http", "applied").Inc()
	if s.Trigger != nil {
		s.Trigger()
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "applied": res})
}

func (s *Server) Recompute(c *gin.Context) {
	if err := s.Engine.Refresh(c.Request.Context()); err != nil {
		logger.Error("recompute failed", "err", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Engine.Stats())
}

type neighborView struct {
	Entity         model.Entity        `json:"entity"`
	Relationship   *model.Relationship `json:"relationship,omitempty"`
	Hops           int                 `json:"hops"`
	PathConfidence float64             `json:"path_confidence"`
}

func (s *Server) Neighbors(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.Engine.Index.Entity(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}

	opts := s.Engine.Orchestrator.Options()
	hops, err := intParam(c, "hops", opts.HopLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	minConf, err := floatParam(c, "min_confidence", opts.MinEdgeConfidence)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ns, err := s.Engine.Neighbors(c.Request.Context(), id, hops, minConf)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	out := make([]neighborView, 0, len(ns))
	for _, n := range ns {
		out = append(out, neighborView{Entity: n.Entity, Relationship: n.Relationship, Hops: n.Hops, PathConfidence: n.PathConfidence})
	}
	c.JSON(http.StatusOK, gin.H{"neighbors": out})
}

func (s *Server) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Stats())
}

type graphView struct {
	Version       uint64               `json:"version"`
	Entities      []model.Entity       `json:"entities"`
	Relationships []model.Relationship `json:"relationships"`
}

func (s *Server) Filter(c *gin.Context) {
	var opts graph.FilterOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if opts.MinDegree < 0 || opts.MinConfidence < 0 || opts.MinConfidence > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_degree must be >= 0 and min_confidence in [0,1]"})
		return
	}

	snap := s.Engine.Index.Filter(opts)
	view := graphView{
		Version:       snap.Version,
		Entities:      make([]model.Entity, 0, len(snap.Entities)),
		Relationships: make([]model.Relationship, 0, len(snap.Relationships)),
	}
	for _, id := range snap.EntityIDs() {
		view.Entities = append(view.Entities, snap.Entities[id])
	}
	for _, id := range snap.RelationshipIDs() {
		view.Relationships = append(view.Relationships, snap.Relationships[id])
	}
	c.JSON(http.StatusOK, view)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrEmbeddingVersion):
		return http.StatusConflict
	case errors.Is(err, model.ErrConfiguration):
		// Configuration is fixed at startup; hitting it mid-request is a server fault.
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func intParam(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return v, nil
}

func floatParam(c *gin.Context, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, errors.New(key + " must be a number in [0,1]")
	}
	return v, nil
}
