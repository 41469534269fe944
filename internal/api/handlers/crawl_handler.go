package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/crawler"
	"github.com/siterag/siterag/internal/metrics"
	"github.com/siterag/siterag/internal/storage/models"
	"github.com/siterag/siterag/pkg/logger"
)

// CrawlRunner is the slice of the crawler the HTTP layer needs.
type CrawlRunner interface {
	Crawl(ctx context.Context, target models.CrawlTarget) (*models.CrawlSession, error)
}

// CrawlDefaults fills request fields the caller left out.
type CrawlDefaults struct {
	MaxPages int
	MaxDepth int
	DelayMS  int
}

type CrawlHandler struct {
	runner   CrawlRunner
	defaults CrawlDefaults
}

func NewCrawlHandler(runner CrawlRunner, defaults CrawlDefaults) *CrawlHandler {
	return &CrawlHandler{
		runner:   runner,
		defaults: defaults,
	}
}

type crawlRequest struct {
	StartURL     string `json:"start_url"`
	MaxPages     *int   `json:"max_pages"`
	MaxDepth     *int   `json:"max_depth"`
	CrawlDelayMS *int   `json:"crawl_delay_ms"`
}

// toTarget validates the request against the documented bounds. Pointer
// fields distinguish "absent, use the default" from an explicit zero.
func (r *crawlRequest) toTarget(defaults CrawlDefaults) (models.CrawlTarget, error) {
	startURL := strings.TrimSpace(r.StartURL)
	if startURL == "" {
		return models.CrawlTarget{}, errors.New("start_url is required")
	}
	if _, err := crawler.Canonicalize(startURL, nil); err != nil {
		return models.CrawlTarget{}, fmt.Errorf("start_url must be an absolute http(s) url: %v", err)
	}

	maxPages := defaults.MaxPages
	if r.MaxPages != nil {
		maxPages = *r.MaxPages
	}
	if maxPages < 1 || maxPages > 200 {
		return models.CrawlTarget{}, errors.New("max_pages must be between 1 and 200")
	}

	maxDepth := defaults.MaxDepth
	if r.MaxDepth != nil {
		maxDepth = *r.MaxDepth
	}
	if maxDepth < 0 || maxDepth > 10 {
		return models.CrawlTarget{}, errors.New("max_depth must be between 0 and 10")
	}

	delayMS := defaults.DelayMS
	if r.CrawlDelayMS != nil {
		delayMS = *r.CrawlDelayMS
	}
	if delayMS < 0 || delayMS > 60000 {
		return models.CrawlTarget{}, errors.New("crawl_delay_ms must be between 0 and 60000")
	}

	return models.CrawlTarget{
		StartURL:   startURL,
		MaxPages:   maxPages,
		MaxDepth:   maxDepth,
		CrawlDelay: time.Duration(delayMS) * time.Millisecond,
	}, nil
}

func (h *CrawlHandler) HandleCrawl(c *fiber.Ctx) error {
	var req crawlRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	target, err := req.toTarget(h.defaults)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logger.Info("Crawl requested",
		zap.String("start_url", target.StartURL),
		zap.Int("max_pages", target.MaxPages),
		zap.Int("max_depth", target.MaxDepth),
	)

	started := time.Now()
	session, err := h.runner.Crawl(c.Context(), target)
	if err != nil {
		logger.Error("Crawl failed", zap.String("start_url", target.StartURL), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to crawl",
		})
	}

	observeCrawl(time.Since(started), session)

	urls := make([]string, 0, len(session.Pages))
	for _, page := range session.Pages {
		urls = append(urls, page.URL)
	}

	return c.JSON(fiber.Map{
		"session_id":    session.ID,
		"page_count":    session.PageCount,
		"skipped_count": session.SkippedCount,
		"urls":          urls,
	})
}

func observeCrawl(elapsed time.Duration, session *models.CrawlSession) {
	metrics.CrawlDuration.Observe(elapsed.Seconds())
	metrics.CrawlPages.WithLabelValues("fetched").Add(float64(session.PageCount))
	metrics.CrawlPages.WithLabelValues("skipped").Add(float64(session.SkippedCount))
}
