package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/metrics"
	"github.com/siterag/siterag/internal/storage/models"
	"github.com/siterag/siterag/internal/storage/sqlite"
	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/pkg/logger"
)

const defaultSessionLimit = 10

// SessionReader is the slice of the session store the HTTP layer needs.
type SessionReader interface {
	RecentSessions(limit int) ([]models.CrawlSession, error)
	LatestSession() (*models.CrawlSession, error)
}

type SessionHandler struct {
	sessions SessionReader
	store    vector.Store
}

func NewSessionHandler(sessions SessionReader, store vector.Store) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		store:    store,
	}
}

func (h *SessionHandler) HandleSessions(c *fiber.Ctx) error {
	limit := defaultSessionLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be an integer",
			})
		}
		limit = parsed
	}
	if limit < 1 || limit > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 100",
		})
	}

	sessions, err := h.sessions.RecentSessions(limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	out := make([]fiber.Map, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionSummary(&session))
	}

	return c.JSON(fiber.Map{
		"sessions": out,
	})
}

func (h *SessionHandler) HandleStats(c *fiber.Ctx) error {
	var latest fiber.Map
	session, err := h.sessions.LatestSession()
	switch {
	case errors.Is(err, sqlite.ErrNoSession):
		latest = nil
	case err != nil:
		logger.Error("Failed to load latest session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load latest session",
		})
	default:
		latest = sessionSummary(session)
	}

	entries, err := h.store.Count(c.Context())
	if err != nil {
		logger.Error("Failed to count vector entries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read vector store",
		})
	}
	metrics.VectorEntries.Set(float64(entries))

	return c.JSON(fiber.Map{
		"latest_session": latest,
		"vector_entries": entries,
	})
}

func sessionSummary(session *models.CrawlSession) fiber.Map {
	return fiber.Map{
		"session_id":    session.ID,
		"start_url":     session.StartURL,
		"started_at":    session.StartedAt,
		"finished_at":   session.FinishedAt,
		"page_count":    session.PageCount,
		"skipped_count": session.SkippedCount,
	}
}
