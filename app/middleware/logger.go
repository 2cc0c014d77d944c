package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger logs every request under prefix with its status and latency.
// Health checks are skipped.
func RequestLogger(prefix string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if !strings.HasPrefix(path, prefix) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not run yet, so the status is still 200.
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = 0
			}
		}
		logger.Info("[HTTP] request",
			"method", c.Method(),
			"path", path,
			"status", status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		return err
	}
}
