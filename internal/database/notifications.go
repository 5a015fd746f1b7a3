package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"printdesk/internal/util"

	"github.com/google/uuid"
)

type Notification struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	NotifType   string
	Title       string
	Message     string
	ReferenceID util.Optional[string]
	IsRead      bool
	CreatedAt   time.Time
}

type CreateNotificationParams struct {
	UserID      uuid.UUID
	NotifType   string
	Title       string
	Message     string
	ReferenceID util.Optional[string]
}

func (db *Database) CreateNotification(ctx context.Context, params CreateNotificationParams) (Notification, error) {
	notification := Notification{
		ID:          uuid.New(),
		UserID:      params.UserID,
		NotifType:   params.NotifType,
		Title:       params.Title,
		Message:     params.Message,
		ReferenceID: params.ReferenceID,
		IsRead:      false,
		CreatedAt:   time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO notifications (id, user_id, notif_type, title, message, reference_id, is_read, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		notification.ID, notification.UserID, notification.NotifType, notification.Title, notification.Message, notification.ReferenceID, notification.IsRead, notification.CreatedAt); err != nil {
		return notification, fmt.Errorf("database: failed to insert notification (user_id=%s): %w", notification.UserID, err)
	}
	return notification, nil
}

type ListNotificationsParams struct {
	UserID     uuid.UUID
	UnreadOnly bool
	Limit      int
}

func (db *Database) ListNotifications(ctx context.Context, params ListNotificationsParams) ([]Notification, error) {
	var notifications []Notification

	var query strings.Builder
	query.WriteString(`SELECT id, user_id, notif_type, title, message, reference_id, is_read, created_at FROM notifications WHERE user_id = $1`)
	args := []any{params.UserID}
	argNum := 2

	if params.UnreadOnly {
		query.WriteString(" AND is_read = FALSE")
	}
	query.WriteString(" ORDER BY created_at DESC")
	if params.Limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT $%d", argNum))
		args = append(args, params.Limit)
		argNum++
	}

	rows, err := db.Pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var notification Notification
		if err := rows.Scan(&notification.ID, &notification.UserID, &notification.NotifType, &notification.Title, &notification.Message, &notification.ReferenceID, &notification.IsRead, &notification.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan notification: %w", err)
		}
		notifications = append(notifications, notification)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate notifications: %w", err)
	}

	return notifications, nil
}

// MarkNotificationRead marks one notification of the user as read.
func (db *Database) MarkNotificationRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("database: failed to mark notification read (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (db *Database) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	if _, err := db.Pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID); err != nil {
		return fmt.Errorf("database: failed to mark all notifications read (user_id=%s): %w", userID, err)
	}
	return nil
}
