package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/siterag/siterag/pkg/logger"
)

// WebSocketHandler streams crawl progress to a connected client. The crawl
// runs to completion first, then its pages are replayed in crawl order, so a
// dropped connection never aborts a crawl half way.
type WebSocketHandler struct {
	runner   CrawlRunner
	defaults CrawlDefaults
}

func NewWebSocketHandler(runner CrawlRunner, defaults CrawlDefaults) *WebSocketHandler {
	return &WebSocketHandler{
		runner:   runner,
		defaults: defaults,
	}
}

// HandleCrawl reads one crawl request from the socket, runs it and streams
// status, per-page and completion messages back.
func (h *WebSocketHandler) HandleCrawl(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	var req crawlRequest
	if err := c.ReadJSON(&req); err != nil {
		logger.Error("Failed to read WebSocket crawl request", zap.Error(err))
		h.sendError(c, "Invalid crawl request")
		return
	}

	target, err := req.toTarget(h.defaults)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	if err := c.WriteJSON(map[string]interface{}{
		"type":      "status",
		"message":   "crawl started",
		"start_url": target.StartURL,
	}); err != nil {
		logger.Error("Failed to send WebSocket status", zap.Error(err))
		return
	}

	started := time.Now()
	session, err := h.runner.Crawl(context.Background(), target)
	if err != nil {
		logger.Error("WebSocket crawl failed", zap.String("start_url", target.StartURL), zap.Error(err))
		h.sendError(c, "Failed to crawl")
		return
	}

	observeCrawl(time.Since(started), session)

	for _, page := range session.Pages {
		if err := c.WriteJSON(map[string]interface{}{
			"type":  "page",
			"url":   page.URL,
			"depth": page.Depth,
			"title": page.Title,
		}); err != nil {
			logger.Error("Failed to stream crawl page", zap.Error(err))
			return
		}
	}

	if err := c.WriteJSON(map[string]interface{}{
		"type":          "complete",
		"session_id":    session.ID,
		"page_count":    session.PageCount,
		"skipped_count": session.SkippedCount,
	}); err != nil {
		logger.Error("Failed to send crawl summary", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, message string) {
	if err := c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": message,
	}); err != nil {
		logger.Error("Failed to send WebSocket error", zap.Error(err))
	}
}
