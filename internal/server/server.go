// Package server exposes the ingestion and layer-management API over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/audit"
	"github.com/agenthands/strata/internal/core"
	"github.com/agenthands/strata/internal/core/model"
	"github.com/agenthands/strata/internal/core/scanner"
	"github.com/agenthands/strata/internal/driver"
	"github.com/agenthands/strata/internal/llm"
)

type Server struct {
	Strata    *core.Strata
	Extractor *llm.Extractor
	Scanner   *scanner.Scanner
	Sink      *audit.Sink
	Logger    *zap.Logger
}

func New(strata *core.Strata, extractor *llm.Extractor, sc *scanner.Scanner, sink *audit.Sink, logger *zap.Logger) *Server {
	return &Server{
		Strata:    strata,
		Extractor: extractor,
		Scanner:   sc,
		Sink:      sink,
		Logger:    logger.Named("server"),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", s.Health)
	r.POST("/documents", s.IngestDocument)
	r.POST("/drafts", s.IngestDrafts)
	r.GET("/entities/:id", s.GetEntity)
	r.GET("/entities", s.LookupEntity)
	r.POST("/entities/:id/promote", s.Promote)
	r.POST("/entities/:id/demote", s.Demote)
	r.POST("/merge", s.Merge)
	r.POST("/scan", s.Scan)
	r.GET("/audit", s.Audit)
	r.GET("/stats", s.Stats)

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type IngestDocumentRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// IngestDocument runs LLM extraction on raw text, then resolves and persists
// the drafts.
func (s *Server) IngestDocument(c *gin.Context) {
	var req IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if s.Extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no extraction model configured"})
		return
	}

	drafts, err := s.Extractor.Extract(c.Request.Context(), req.DocumentID, req.Content)
	if err != nil {
		s.Logger.Error("extraction failed", zap.String("document", req.DocumentID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "extraction failed"})
		return
	}

	report, err := s.Strata.IngestDrafts(c.Request.Context(), req.DocumentID, drafts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type IngestDraftsRequest struct {
	DocumentID    string                    `json:"document_id" binding:"required"`
	Entities      []model.EntityDraft       `json:"entities"`
	Relationships []model.RelationshipDraft `json:"relationships"`
}

// IngestDrafts accepts pre-extracted drafts, bypassing the LLM.
func (s *Server) IngestDrafts(c *gin.Context) {
	var req IngestDraftsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	report, err := s.Strata.IngestDrafts(c.Request.Context(), req.DocumentID, &model.ExtractedDrafts{
		Entities:      req.Entities,
		Relationships: req.Relationships,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) GetEntity(c *gin.Context) {
	entity, err := s.Strata.GetEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (s *Server) LookupEntity(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name query parameter required"})
		return
	}
	entity, err := s.Strata.Lookup(c.Request.Context(), name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (s *Server) Promote(c *gin.Context) {
	result, err := s.Strata.PromoteEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type DemoteRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) Demote(c *gin.Context) {
	var req DemoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}

	record, err := s.Strata.DemoteEntity(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"status": "already at lowest layer"})
		return
	}
	c.JSON(http.StatusOK, record)
}

type MergeRequest struct {
	EntityA string `json:"entity_a" binding:"required"`
	EntityB string `json:"entity_b" binding:"required"`
}

func (s *Server) Merge(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	survivor, err := s.Strata.MergeEntities(c.Request.Context(), req.EntityA, req.EntityB)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"canonical_id": survivor})
}

type ScanRequest struct {
	Layer     string `json:"layer"`
	BatchSize int    `json:"batch_size"`
}

// Scan triggers one on-demand scan pass, outside the periodic schedule.
func (s *Server) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	layer, ok := model.ParseLayer(req.Layer)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown layer"})
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = s.Scanner.BatchSize()
	}

	summary, err := s.Scanner.Scan(c.Request.Context(), layer, req.BatchSize)
	if err != nil {
		s.respondError(c, err)
		return
	}
	relSummary, err := s.Scanner.ScanRelationships(c.Request.Context(), layer, req.BatchSize)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": summary, "relationships": relSummary})
}

func (s *Server) Audit(c *gin.Context) {
	records, err := s.Sink.ReadAll()
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) Stats(c *gin.Context) {
	counts, err := s.Strata.LayerCounts(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layers": counts})
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, driver.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, driver.ErrConflict), errors.Is(err, model.ErrResolutionFailed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
