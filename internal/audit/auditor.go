package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"printdesk/internal/database"
)

type EventType string

const (
	EventTypeUserLogin            EventType = "user.login"
	EventTypeRegistrationApproved EventType = "registration.approved"
	EventTypeRegistrationRejected EventType = "registration.rejected"
)

type Store interface {
	CreateAuditLogEvent(ctx context.Context, params database.CreateAuditLogEventParams) (database.AuditLogEvent, error)
	ListAuditLogEvents(ctx context.Context, params database.ListAuditLogEventsParams) ([]database.AuditLogEvent, error)
}

// Auditor keeps an append-only trail of who did what. Review decisions on
// registrations always leave a row here, tied to the reviewer.
type Auditor struct {
	logger *slog.Logger
	store  Store
}

func NewAuditor(logger *slog.Logger, store Store) Auditor {
	return Auditor{logger: logger, store: store}
}

type LogEventParams struct {
	ActorID uuid.UUID
	Type    EventType
	Data    map[string]any
}

func (a *Auditor) LogEvent(ctx context.Context, params LogEventParams) error {
	data, err := json.Marshal(params.Data)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event data: %w", err)
	}

	if _, err := a.store.CreateAuditLogEvent(ctx, database.CreateAuditLogEventParams{
		ActorID:   params.ActorID,
		EventType: string(params.Type),
		EventData: data,
	}); err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// ListByActor returns the most recent events for one actor, newest first.
func (a *Auditor) ListByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]database.AuditLogEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return a.store.ListAuditLogEvents(ctx, database.ListAuditLogEventsParams{
		ActorID: actorID,
		Limit:   limit,
	})
}
