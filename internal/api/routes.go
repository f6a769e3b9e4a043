package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// Register mounts the authenticated API under /api.
func Register(app fiber.Router, auth *middleware.AuthMiddleware, automation *handlers.AutomationHandler, post *handlers.PostHandler, platforms *handlers.PlatformHandler) {
	api := app.Group("/api")
	api.Use(auth.AuthMiddleware())

	ops := api.Group("/automation", middleware.RequireRole(utils.RoleOperator))
	ops.Post("/run", automation.Run)
	ops.Get("/status", automation.Status)
	ops.Post("/retry-failed", automation.RetryFailed)
	ops.Post("/jobs/:name", automation.TriggerJob)

	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/remove", post.RemovePost)
	api.Get("/usage", post.Usage)
	api.Get("/platforms", platforms.ListConnections)
}
