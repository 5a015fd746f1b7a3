package api

import (
	"log/slog"

	"printdesk/internal/auth"
	"printdesk/internal/database"
	"printdesk/internal/inventory"
	"printdesk/internal/notifications"
	"printdesk/internal/registration"
	"printdesk/internal/validator"
	"printdesk/internal/verification"
)

// Handler carries every dependency the HTTP layer needs. Route registration
// lives in router.go.
type Handler struct {
	logger       *slog.Logger
	db           *database.Database
	validator    *validator.Validator
	tokens       *auth.TokenManager
	authService  *auth.Service
	verification *verification.Manager
	matcher      *inventory.Matcher
	registration *registration.Manager
	notifier     *notifications.Notifier
}

func NewHandler(
	logger *slog.Logger,
	db *database.Database,
	v *validator.Validator,
	tokens *auth.TokenManager,
	authService *auth.Service,
	verificationManager *verification.Manager,
	matcher *inventory.Matcher,
	registrationManager *registration.Manager,
	notifier *notifications.Notifier,
) Handler {
	return Handler{
		logger:       logger,
		db:           db,
		validator:    v,
		tokens:       tokens,
		authService:  authService,
		verification: verificationManager,
		matcher:      matcher,
		registration: registrationManager,
		notifier:     notifier,
	}
}
