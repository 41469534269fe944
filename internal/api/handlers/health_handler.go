package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/siterag/siterag/internal/vector"
)

const (
	serviceName    = "siterag"
	serviceVersion = "1.0.0"
)

// Pinger covers the sqlite client's liveness check.
type Pinger interface {
	Ping() error
}

type HealthHandler struct {
	db     Pinger
	store  vector.Store
	prober AvailabilityProber
}

func NewHealthHandler(db Pinger, store vector.Store, prober AvailabilityProber) *HealthHandler {
	return &HealthHandler{
		db:     db,
		store:  store,
		prober: prober,
	}
}

func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReady gates readiness on the stores the service cannot run without.
// The model backend is reported as a check but does not flip readiness:
// crawling and history work without it, and /index and /ask already answer
// 503 while it is down.
func (h *HealthHandler) HandleReady(c *fiber.Ctx) error {
	checks := fiber.Map{}
	ready := true

	if err := h.db.Ping(); err != nil {
		checks["sqlite"] = err.Error()
		ready = false
	} else {
		checks["sqlite"] = "ok"
	}

	if _, err := h.store.Count(c.Context()); err != nil {
		checks["vector_store"] = err.Error()
		ready = false
	} else {
		checks["vector_store"] = "ok"
	}

	if err := h.prober.Available(c.Context()); err != nil {
		checks["llm"] = err.Error()
	} else {
		checks["llm"] = "ok"
	}

	status := fiber.StatusOK
	if !ready {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"ready":  ready,
		"checks": checks,
	})
}
