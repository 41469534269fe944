package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/metrics"
	"github.com/siterag/siterag/internal/qa"
	"github.com/siterag/siterag/pkg/logger"
)

const defaultTopK = 5

// AskRunner is the slice of the QA engine the HTTP layer needs.
type AskRunner interface {
	Ask(ctx context.Context, question string, topK int) (*qa.Answer, error)
}

type AskHandler struct {
	runner AskRunner
	prober AvailabilityProber
}

func NewAskHandler(runner AskRunner, prober AvailabilityProber) *AskHandler {
	return &AskHandler{
		runner: runner,
		prober: prober,
	}
}

type askRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k"`
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question is required",
		})
	}

	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "top_k must be positive",
		})
	}

	if err := h.prober.Available(c.Context()); err != nil {
		logger.Error("LLM backend unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "llm backend unreachable",
		})
	}

	answer, err := h.runner.Ask(c.Context(), question, topK)
	if err != nil {
		metrics.AskTotal.WithLabelValues("failed").Inc()

		var stageErr *qa.StageError
		if errors.As(err, &stageErr) {
			logger.Error("Ask stage failed",
				zap.String("stage", stageErr.Stage),
				zap.Error(err),
			)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": fmt.Sprintf("%s stage failed", stageErr.Stage),
				"stage": stageErr.Stage,
			})
		}

		logger.Error("Ask failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to answer",
		})
	}

	status := "answered"
	if answer.Answer == qa.RefusalAnswer && len(answer.Sources) == 0 {
		status = "refused"
	}
	metrics.AskTotal.WithLabelValues(status).Inc()

	// Cached answers replay stored timings; observing those again would
	// skew the latency histograms.
	if !answer.Cached {
		metrics.AskDuration.WithLabelValues("retrieval").Observe(float64(answer.Timings.RetrievalMS) / 1000)
		metrics.AskDuration.WithLabelValues("generation").Observe(float64(answer.Timings.GenerationMS) / 1000)
		metrics.AskDuration.WithLabelValues("total").Observe(float64(answer.Timings.TotalMS) / 1000)
	}

	sources := make([]fiber.Map, 0, len(answer.Sources))
	for _, source := range answer.Sources {
		sources = append(sources, fiber.Map{
			"url":     source.URL,
			"snippet": source.Snippet,
		})
	}

	return c.JSON(fiber.Map{
		"answer":  answer.Answer,
		"sources": sources,
		"timings": fiber.Map{
			"retrieval_ms":  answer.Timings.RetrievalMS,
			"generation_ms": answer.Timings.GenerationMS,
			"total_ms":      answer.Timings.TotalMS,
		},
		"cached": answer.Cached,
	})
}
