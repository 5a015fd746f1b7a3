package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"printdesk/internal/auth"
	"printdesk/internal/ratelimit"
	"printdesk/internal/validator"
	"printdesk/internal/verification"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Validate(req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": validator.Message(err)})
	}

	result, err := h.authService.Login(c.Context(), verification.NormalizeEmail(req.Email), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			// Generic message to prevent email enumeration
			return c.Status(401).JSON(fiber.Map{"error": "Invalid email or password"})
		case errors.Is(err, auth.ErrAccountPending):
			return c.Status(403).JSON(fiber.Map{"error": "Your registration is still awaiting review"})
		case errors.Is(err, ratelimit.ErrTooManyAttempts):
			return c.Status(429).JSON(fiber.Map{"error": "Too many attempts, try again later"})
		default:
			h.logger.ErrorContext(c.Context(), "Failed to log user in", "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	return c.JSON(fiber.Map{
		"token": result.Token,
		"user": fiber.Map{
			"id":         result.User.ID,
			"email":      result.User.Email,
			"first_name": result.User.FirstName,
			"last_name":  result.User.LastName,
			"role":       result.User.Role,
		},
	})
}
