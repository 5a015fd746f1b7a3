package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"printdesk/internal/database"
	"printdesk/internal/mail"
	"printdesk/internal/monitoring"
	"printdesk/internal/ratelimit"
	"printdesk/internal/util"
)

var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrCodeInvalid            = errors.New("verification code invalid")
	ErrCodeExpired            = errors.New("verification code expired")
)

// Verified markers are short-lived: submission has to happen reasonably soon
// after the code was entered.
const verifiedMarkerTTL = time.Hour

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	CreateVerificationToken(ctx context.Context, params database.CreateVerificationTokenParams) (database.VerificationToken, error)
	GetVerificationToken(ctx context.Context, params database.GetVerificationTokenParams) (database.VerificationToken, error)
	DeleteVerificationTokenByID(ctx context.Context, id uuid.UUID) error
	UpsertVerifiedEmail(ctx context.Context, params database.UpsertVerifiedEmailParams) (database.VerifiedEmail, error)
}

type Manager struct {
	logger     *slog.Logger
	store      Store
	mailer     mail.Mailer
	limiter    *ratelimit.RateLimiter
	telemetry  monitoring.Telemetry
	codeTTL    time.Duration
	codeLength int
}

func NewManager(logger *slog.Logger, store Store, mailer mail.Mailer, limiter *ratelimit.RateLimiter, telemetry monitoring.Telemetry, codeTTL time.Duration, codeLength int) Manager {
	return Manager{
		logger:     logger,
		store:      store,
		mailer:     mailer,
		limiter:    limiter,
		telemetry:  telemetry,
		codeTTL:    codeTTL,
		codeLength: codeLength,
	}
}

// RequestCode issues a fresh verification code for the email and mails it.
// Any previously issued code for the email stops working. Emails that already
// belong to an account are refused so the flow cannot be used to re-register
// existing users.
func (m *Manager) RequestCode(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	if err := m.limiter.CheckSendCode(ctx, email); err != nil {
		return err
	}

	if _, err := m.store.GetUserByEmail(ctx, email); err == nil {
		return ErrEmailAlreadyRegistered
	} else if !errors.Is(err, database.ErrUserNotFound) {
		return fmt.Errorf("verification: failed to check existing user: %w", err)
	}

	code, err := util.RandomDigits(m.codeLength)
	if err != nil {
		return fmt.Errorf("verification: failed to generate code: %w", err)
	}

	if _, err := m.store.CreateVerificationToken(ctx, database.CreateVerificationTokenParams{
		Email:     email,
		Code:      code,
		TokenType: database.TokenTypeEmailVerification,
		ExpiresAt: time.Now().UTC().Add(m.codeTTL),
	}); err != nil {
		m.telemetry.RecordCodeIssued(ctx, email, false)
		return fmt.Errorf("verification: failed to store code: %w", err)
	}

	// The code is stored either way, delivery can be retried by requesting a
	// new code.
	if err := m.mailer.SendVerificationCode(ctx, email, code); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send verification code email", "email", email, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "verification_email")
	}

	m.telemetry.RecordCodeIssued(ctx, email, true)
	return nil
}

// VerifyCode consumes the code and records a server-side verified marker for
// the email. Wrong and expired codes are indistinguishable to a caller except
// for the returned sentinel; both leave no marker.
func (m *Manager) VerifyCode(ctx context.Context, email string, code string) error {
	email = NormalizeEmail(email)

	if err := m.limiter.CheckVerifyCode(ctx, email); err != nil {
		return err
	}

	token, err := m.store.GetVerificationToken(ctx, database.GetVerificationTokenParams{
		Email:     email,
		Code:      strings.TrimSpace(code),
		TokenType: database.TokenTypeEmailVerification,
	})
	if err != nil {
		if errors.Is(err, database.ErrVerificationTokenNotFound) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("verification: failed to look up code: %w", err)
	}

	if time.Now().UTC().After(token.ExpiresAt) {
		if err := m.store.DeleteVerificationTokenByID(ctx, token.ID); err != nil {
			m.logger.ErrorContext(ctx, "Failed to delete expired verification token", "email", email, "error", err)
		}
		return ErrCodeExpired
	}

	if err := m.store.DeleteVerificationTokenByID(ctx, token.ID); err != nil {
		return fmt.Errorf("verification: failed to consume code: %w", err)
	}

	if _, err := m.store.UpsertVerifiedEmail(ctx, database.UpsertVerifiedEmailParams{
		Email:     email,
		ExpiresAt: time.Now().UTC().Add(verifiedMarkerTTL),
	}); err != nil {
		return fmt.Errorf("verification: failed to record verified email: %w", err)
	}

	return nil
}

// NormalizeEmail lowercases and trims an address so lookups and markers agree
// on one spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
