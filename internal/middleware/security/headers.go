package security

import (
	"github.com/gofiber/fiber/v2"
)

// Headers sets baseline response headers. The service speaks JSON and one
// WebSocket, so the browser-oriented policies reduce to a strict minimum.
func Headers() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		return c.Next()
	}
}
