package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"printdesk/internal/auth"
	"printdesk/internal/database"
)

// Authenticated requires a valid bearer token and puts the caller's identity
// in locals: user_id (uuid.UUID), email (string) and role (string).
func Authenticated(tokens *auth.TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(401).JSON(fiber.Map{"error": "Missing or malformed Authorization header"})
		}

		claims, err := tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// RequireCoordinator restricts a route to coordinators and admins. Must run
// after Authenticated.
func RequireCoordinator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		switch database.UserRole(role) {
		case database.UserRoleCoordinator, database.UserRoleAdmin:
			return c.Next()
		default:
			return c.Status(403).JSON(fiber.Map{"error": "Coordinator access required"})
		}
	}
}
