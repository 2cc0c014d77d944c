package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether the reference index can be searched.
type Pinger interface {
	Available(ctx context.Context) error
}

type CheckHandler struct {
	index Pinger
}

func NewCheckHandler(index Pinger) *CheckHandler {
	return &CheckHandler{index: index}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleReady reports degraded when the reference index is unreachable.
// Analysis still works in that state, so the status stays 200.
func (h CheckHandler) HandleReady(c *fiber.Ctx) error {
	if h.index == nil {
		return c.JSON(fiber.Map{"result": "ok", "retrieval": "disabled"})
	}
	if err := h.index.Available(c.UserContext()); err != nil {
		return c.JSON(fiber.Map{"result": "degraded", "retrieval": err.Error()})
	}
	return c.JSON(fiber.Map{"result": "ok", "retrieval": "ok"})
}
