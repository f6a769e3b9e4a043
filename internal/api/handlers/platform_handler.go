package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

type PlatformHandler struct {
	ps service.PlatformService
}

func NewPlatformHandler(ps service.PlatformService) *PlatformHandler {
	return &PlatformHandler{ps: ps}
}

func (h *PlatformHandler) ListConnections(c *fiber.Ctx) error {
	connections, err := h.ps.List(c.UserContext(), GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrSubscriberInactive) {
			return errorResponse(c, fiber.StatusNotFound, "Subscriber not found")
		}
		slog.Info(err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to fetch social accounts")
	}
	return c.Status(fiber.StatusOK).JSON(connections)
}
