package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/automation"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// Automation is the operator view of the scheduler.
type Automation interface {
	RunNow(ctx context.Context) bool
	Status() automation.StatusSnapshot
	RetryFailedPosts(ctx context.Context, subscriberID string) (*automation.RetrySummary, error)
}

// Triggers runs a named maintenance job on demand.
type Triggers interface {
	Trigger(name string) error
}

type AutomationHandler struct {
	a        Automation
	triggers Triggers
	Validate *validator.Validate
}

func NewAutomationHandler(a Automation, triggers Triggers) *AutomationHandler {
	return &AutomationHandler{a: a, triggers: triggers, Validate: validator.New()}
}

func (h *AutomationHandler) Run(c *fiber.Ctx) error {
	if !h.a.RunNow(c.UserContext()) {
		return errorResponse(c, fiber.StatusConflict, "A scheduler tick is already running")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Scheduler tick completed",
		"status":  h.a.Status(),
	})
}

func (h *AutomationHandler) Status(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.a.Status())
}

func (h *AutomationHandler) RetryFailed(c *fiber.Ctx) error {
	var req transfer.RetryFailedRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Unable to parse request")
		}
	}
	if err := h.Validate.Struct(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request")
	}

	summary, err := h.a.RetryFailedPosts(c.UserContext(), req.SubscriberID)
	if err != nil {
		slog.Error(err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "Unable to retry failed posts")
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *AutomationHandler) TriggerJob(c *fiber.Ctx) error {
	name := c.Params("name")
	if h.triggers == nil {
		return errorResponse(c, fiber.StatusNotFound, "Unknown job")
	}
	switch err := h.triggers.Trigger(name); {
	case errors.Is(err, automation.ErrUnknownTrigger):
		return errorResponse(c, fiber.StatusNotFound, "Unknown job")
	case errors.Is(err, automation.ErrTriggerBusy):
		return errorResponse(c, fiber.StatusConflict, "Job is already running")
	case err != nil:
		slog.Error(err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "Unable to trigger job")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Job triggered",
		"job":     name,
	})
}
