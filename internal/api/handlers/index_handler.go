package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/indexer"
	"github.com/siterag/siterag/internal/metrics"
	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/pkg/logger"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
)

// IndexRunner is the slice of the indexer the HTTP layer needs.
type IndexRunner interface {
	Index(ctx context.Context, opts indexer.Options) (*indexer.Result, error)
}

// AvailabilityProber reports whether the model backend is reachable. Index
// and ask requests are refused up front when it is not.
type AvailabilityProber interface {
	Available(ctx context.Context) error
}

// AnswerInvalidator drops cached answers once the index contents change.
type AnswerInvalidator interface {
	InvalidateAnswers(ctx context.Context) error
}

type IndexHandler struct {
	runner      IndexRunner
	prober      AvailabilityProber
	store       vector.Store
	invalidator AnswerInvalidator
}

// NewIndexHandler creates an IndexHandler. invalidator may be nil when no
// answer cache is configured.
func NewIndexHandler(runner IndexRunner, prober AvailabilityProber, store vector.Store, invalidator AnswerInvalidator) *IndexHandler {
	return &IndexHandler{
		runner:      runner,
		prober:      prober,
		store:       store,
		invalidator: invalidator,
	}
}

type indexRequest struct {
	ChunkSize      *int   `json:"chunk_size"`
	ChunkOverlap   *int   `json:"chunk_overlap"`
	EmbeddingModel string `json:"embedding_model"`
}

func (h *IndexHandler) HandleIndex(c *fiber.Ctx) error {
	var req indexRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	chunkSize := defaultChunkSize
	if req.ChunkSize != nil {
		chunkSize = *req.ChunkSize
	}
	chunkOverlap := defaultChunkOverlap
	if req.ChunkOverlap != nil {
		chunkOverlap = *req.ChunkOverlap
	}

	if chunkSize <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chunk_size must be positive",
		})
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chunk_overlap must be non-negative and smaller than chunk_size",
		})
	}

	if err := h.prober.Available(c.Context()); err != nil {
		logger.Error("LLM backend unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "llm backend unreachable",
		})
	}

	logger.Info("Index requested",
		zap.Int("chunk_size", chunkSize),
		zap.Int("chunk_overlap", chunkOverlap),
		zap.String("embedding_model", req.EmbeddingModel),
	)

	started := time.Now()
	result, err := h.runner.Index(c.Context(), indexer.Options{
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
		EmbeddingModel: req.EmbeddingModel,
	})
	if err != nil {
		logger.Error("Indexing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to index",
		})
	}

	metrics.IndexDuration.Observe(time.Since(started).Seconds())
	metrics.IndexChunks.WithLabelValues("indexed").Add(float64(result.VectorCount))
	metrics.IndexChunks.WithLabelValues("failed").Add(float64(len(result.Errors)))

	if count, err := h.store.Count(c.Context()); err == nil {
		metrics.VectorEntries.Set(float64(count))
	}

	if h.invalidator != nil && result.VectorCount > 0 {
		if err := h.invalidator.InvalidateAnswers(c.Context()); err != nil {
			logger.Warn("Failed to invalidate answer cache", zap.Error(err))
		}
	}

	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}

	return c.JSON(fiber.Map{
		"session_id":   result.SessionID,
		"page_count":   result.PageCount,
		"chunk_count":  result.ChunkCount,
		"vector_count": result.VectorCount,
		"errors":       errs,
	})
}
