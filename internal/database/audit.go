package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AuditLogEvent struct {
	ID        uuid.UUID
	ActorID   uuid.UUID
	EventType string
	EventData []byte
	CreatedAt time.Time
}

type CreateAuditLogEventParams struct {
	ActorID   uuid.UUID
	EventType string
	EventData []byte
}

func (db *Database) CreateAuditLogEvent(ctx context.Context, params CreateAuditLogEventParams) (AuditLogEvent, error) {
	event := AuditLogEvent{
		ID:        uuid.New(),
		ActorID:   params.ActorID,
		EventType: params.EventType,
		EventData: params.EventData,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO audit_log_events (id, actor_id, event_type, event_data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.ActorID, event.EventType, event.EventData, event.CreatedAt); err != nil {
		return event, fmt.Errorf("database: failed to insert audit log event (actor_id=%s): %w", event.ActorID, err)
	}
	return event, nil
}

type ListAuditLogEventsParams struct {
	ActorID uuid.UUID
	Limit   int
}

func (db *Database) ListAuditLogEvents(ctx context.Context, params ListAuditLogEventsParams) ([]AuditLogEvent, error) {
	var events []AuditLogEvent

	rows, err := db.Pool.Query(ctx, `SELECT id, actor_id, event_type, event_data, created_at FROM audit_log_events WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2`,
		params.ActorID, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list audit log events (actor_id=%s): %w", params.ActorID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var event AuditLogEvent
		if err := rows.Scan(&event.ID, &event.ActorID, &event.EventType, &event.EventData, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan audit log event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate audit log events: %w", err)
	}

	return events, nil
}
