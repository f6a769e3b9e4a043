package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	s        service.PostService
	quota    service.QuotaService
	Validate *validator.Validate
}

func NewPostHandler(s service.PostService, quota service.QuotaService) *PostHandler {
	return &PostHandler{s: s, quota: quota, Validate: validator.New()}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	subscriberID := GetUserID(c)
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return errorResponse(c, fiber.StatusBadRequest, "Unable to parse form")
	}

	pc := transfer.PostCreation{
		Text:          c.FormValue("text"),
		Hashtags:      c.FormValue("hashtags"),
		ContentType:   c.FormValue("content_type"),
		ScheduledTime: c.FormValue("scheduled_time"),
		Timezone:      c.FormValue("timezone"),
		Platforms:     c.FormValue("platforms"),
	}
	if err := h.Validate.Struct(pc); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid post: "+err.Error())
	}

	job, err := h.s.CreatePost(c.UserContext(), subscriberID, &pc, form.File["files"])
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuotaExceeded):
			return errorResponse(c, fiber.StatusPaymentRequired, err.Error())
		case errors.Is(err, service.ErrInvalidPost):
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrSubscriberInactive):
			return errorResponse(c, fiber.StatusForbidden, err.Error())
		}
		slog.Error(err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "Unable to create post")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post scheduled successfully",
		"post":    job,
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	subscriberID := GetUserID(c)

	if id := c.Query("id"); id != "" {
		post, err := h.s.PostInfo(c.UserContext(), subscriberID, id)
		if err != nil {
			if errors.Is(err, service.ErrJobNotFound) {
				return errorResponse(c, fiber.StatusNotFound, "Post doesn't exist")
			}
			return errorResponse(c, fiber.StatusInternalServerError, "Unable to get post")
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.UserContext(), subscriberID)
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Unable to list posts")
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	var req transfer.RemovePostRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Unable to parse request")
	}
	if err := h.Validate.Struct(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request")
	}

	err := h.s.Remove(c.UserContext(), GetUserID(c), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			return errorResponse(c, fiber.StatusNotFound, "Post doesn't exist")
		case errors.Is(err, service.ErrJobBusy):
			return errorResponse(c, fiber.StatusConflict, err.Error())
		}
		return errorResponse(c, fiber.StatusInternalServerError, "Unable to remove post")
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) Usage(c *fiber.Ctx) error {
	usage, err := h.quota.Usage(c.UserContext(), GetUserID(c), time.Now())
	if err != nil {
		if errors.Is(err, service.ErrNoSubscription) {
			return errorResponse(c, fiber.StatusNotFound, err.Error())
		}
		return errorResponse(c, fiber.StatusInternalServerError, "Unable to load usage")
	}
	return c.Status(fiber.StatusOK).JSON(usage)
}
