package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"printdesk/internal/database"
)

func (h *Handler) ListNotifications(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uuid.UUID)
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	limit := c.QueryInt("limit")

	items, err := h.notifier.List(c.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to list notifications", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}

	rows := make([]fiber.Map, 0, len(items))
	for _, item := range items {
		rows = append(rows, fiber.Map{
			"id":           item.ID,
			"type":         item.NotifType,
			"title":        item.Title,
			"message":      item.Message,
			"reference_id": item.ReferenceID,
			"is_read":      item.IsRead,
			"created_at":   item.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"notifications": rows})
}

func (h *Handler) MarkNotificationRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uuid.UUID)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid notification id"})
	}

	if err := h.notifier.MarkRead(c.Context(), id, userID); err != nil {
		if errors.Is(err, database.ErrNotificationNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Notification not found"})
		}
		h.logger.ErrorContext(c.Context(), "Failed to mark notification read", "notification_id", id, "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"message": "Notification marked read"})
}

func (h *Handler) MarkAllNotificationsRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uuid.UUID)

	if err := h.notifier.MarkAllRead(c.Context(), userID); err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to mark all notifications read", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"message": "All notifications marked read"})
}
