package handlers

import (
	"github.com/gofiber/fiber/v2"
)

const (
	localUserID = "user_id"
	localRole   = "role"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(localUserID).(string)
	return userID
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(localRole).(string)
	return role
}

func SetIdentity(c *fiber.Ctx, userID, role string) {
	c.Locals(localUserID, userID)
	c.Locals(localRole, role)
}

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
