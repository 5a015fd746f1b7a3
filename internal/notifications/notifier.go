package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"printdesk/internal/database"
)

const defaultListLimit = 50

type Store interface {
	CreateNotification(ctx context.Context, params database.CreateNotificationParams) (database.Notification, error)
	ListNotifications(ctx context.Context, params database.ListNotificationsParams) ([]database.Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error
}

// Notifier is the in-app notification feed for staff accounts.
type Notifier struct {
	logger *slog.Logger
	store  Store
}

func NewNotifier(logger *slog.Logger, store Store) Notifier {
	return Notifier{logger: logger, store: store}
}

func (n *Notifier) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]database.Notification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	items, err := n.store.ListNotifications(ctx, database.ListNotificationsParams{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("notifications: failed to list: %w", err)
	}
	return items, nil
}

// MarkRead flips a single notification. Marking another user's notification
// surfaces as database.ErrNotificationNotFound.
func (n *Notifier) MarkRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	return n.store.MarkNotificationRead(ctx, id, userID)
}

func (n *Notifier) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return n.store.MarkAllNotificationsRead(ctx, userID)
}
