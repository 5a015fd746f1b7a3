package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// SecurityHeaders sets the standard hardening headers on every response.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Cache-Control", "no-store")
		return c.Next()
	}
}

// BodyLimit guards upload endpoints against oversized photo submissions.
// Fiber enforces the app-level limit; this gives a JSON error instead of the
// default plain text response.
func BodyLimit(maxBytes int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(c.Body()) > maxBytes {
			return c.Status(413).JSON(fiber.Map{"error": "Request body too large"})
		}
		return c.Next()
	}
}
