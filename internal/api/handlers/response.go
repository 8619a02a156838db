package handlers

import (
	"finman/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// currentUserID returns the authenticated user's id, rejecting anything
// that is not a uuid subject.
func currentUserID(c *fiber.Ctx) (string, error) {
	userID := middleware.UserID(c)
	if _, err := uuid.Parse(userID); err != nil {
		return "", fiber.ErrUnauthorized
	}
	return userID, nil
}
