package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"printdesk/internal/audit"
	"printdesk/internal/database"
	"printdesk/internal/ratelimit"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountPending     = errors.New("account pending approval")
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
}

type Service struct {
	logger  *slog.Logger
	store   UserStore
	tokens  *TokenManager
	limiter *ratelimit.RateLimiter
	auditor *audit.Auditor
}

func NewService(logger *slog.Logger, store UserStore, tokens *TokenManager, limiter *ratelimit.RateLimiter, auditor *audit.Auditor) Service {
	return Service{
		logger:  logger,
		store:   store,
		tokens:  tokens,
		limiter: limiter,
		auditor: auditor,
	}
}

type LoginResult struct {
	Token string
	User  database.User
}

// Login checks credentials and issues a signed token. A requester whose
// registration has not been approved yet cannot sign in; an unknown email and
// a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email string, password string) (LoginResult, error) {
	var result LoginResult

	if err := s.limiter.CheckLogin(ctx, email); err != nil {
		return result, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return result, ErrInvalidCredentials
		}
		return result, fmt.Errorf("auth: failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return result, ErrInvalidCredentials
	}

	if user.Role == database.UserRoleRequester && user.ApprovalStatus != database.ApprovalStatusApproved {
		return result, ErrAccountPending
	}

	token, err := s.tokens.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		return result, fmt.Errorf("auth: failed to issue token: %w", err)
	}

	if err := s.limiter.ResetAttempts(ctx, "login", email); err != nil {
		s.logger.WarnContext(ctx, "Failed to reset login attempts", "email", email, "error", err)
	}

	if err := s.auditor.LogEvent(ctx, audit.LogEventParams{
		ActorID: user.ID,
		Type:    audit.EventTypeUserLogin,
		Data:    map[string]any{"email": user.Email},
	}); err != nil {
		s.logger.WarnContext(ctx, "Failed to record login audit event", "user_id", user.ID, "error", err)
	}

	result.Token = token
	result.User = user
	return result, nil
}
