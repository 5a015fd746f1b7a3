package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const TokenTypeEmailVerification = "email_verification"

type VerificationToken struct {
	ID        uuid.UUID
	Email     string
	Code      string
	TokenType string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type CreateVerificationTokenParams struct {
	Email     string
	Code      string
	TokenType string
	ExpiresAt time.Time
}

// CreateVerificationToken inserts a fresh code for the email. Existing codes
// of the same type are removed first so at most one is active per email.
func (db *Database) CreateVerificationToken(ctx context.Context, params CreateVerificationTokenParams) (VerificationToken, error) {
	token := VerificationToken{
		ID:        uuid.New(),
		Email:     params.Email,
		Code:      params.Code,
		TokenType: params.TokenType,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return token, fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM verification_tokens WHERE LOWER(email) = LOWER($1) AND token_type = $2`, token.Email, token.TokenType); err != nil {
		return token, fmt.Errorf("database: failed to delete prior verification tokens (email=%s): %w", token.Email, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO verification_tokens (id, email, code, token_type, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.Email, token.Code, token.TokenType, token.ExpiresAt, token.CreatedAt); err != nil {
		return token, fmt.Errorf("database: failed to insert verification token (email=%s): %w", token.Email, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return token, fmt.Errorf("database: failed to commit verification token: %w", err)
	}
	return token, nil
}

type GetVerificationTokenParams struct {
	Email     string
	Code      string
	TokenType string
}

func (db *Database) GetVerificationToken(ctx context.Context, params GetVerificationTokenParams) (VerificationToken, error) {
	var token VerificationToken

	err := db.Pool.QueryRow(ctx, `SELECT id, email, code, token_type, expires_at, created_at FROM verification_tokens WHERE LOWER(email) = LOWER($1) AND code = $2 AND token_type = $3`,
		params.Email, params.Code, params.TokenType).Scan(
		&token.ID, &token.Email, &token.Code, &token.TokenType, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return token, ErrVerificationTokenNotFound
		}
		return token, fmt.Errorf("database: failed to scan verification token: %w", err)
	}
	return token, nil
}

func (db *Database) DeleteVerificationTokenByID(ctx context.Context, id uuid.UUID) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM verification_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("database: failed to delete verification token (id=%s): %w", id, err)
	}
	return nil
}

type VerifiedEmail struct {
	Email      string
	VerifiedAt time.Time
	ExpiresAt  time.Time
}

type UpsertVerifiedEmailParams struct {
	Email     string
	ExpiresAt time.Time
}

// UpsertVerifiedEmail records that the email passed code verification.
// The marker is later consumed by registration submission.
func (db *Database) UpsertVerifiedEmail(ctx context.Context, params UpsertVerifiedEmailParams) (VerifiedEmail, error) {
	verified := VerifiedEmail{
		Email:      params.Email,
		VerifiedAt: time.Now().UTC(),
		ExpiresAt:  params.ExpiresAt,
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO verified_emails (email, verified_at, expires_at) VALUES (LOWER($1), $2, $3) ON CONFLICT (email) DO UPDATE SET verified_at = $2, expires_at = $3`,
		verified.Email, verified.VerifiedAt, verified.ExpiresAt); err != nil {
		return verified, fmt.Errorf("database: failed to upsert verified email (email=%s): %w", verified.Email, err)
	}
	return verified, nil
}

// ConsumeVerifiedEmail deletes the unexpired marker for the email.
// Returns ErrVerifiedEmailNotFound when no valid marker exists.
func (db *Database) ConsumeVerifiedEmail(ctx context.Context, email string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM verified_emails WHERE email = LOWER($1) AND expires_at > $2`, email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("database: failed to consume verified email (email=%s): %w", email, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVerifiedEmailNotFound
	}
	return nil
}

// DeleteExpiredVerificationTokens removes codes past their expiry. Returns
// the number of rows removed.
func (db *Database) DeleteExpiredVerificationTokens(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM verification_tokens WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("database: failed to delete expired verification tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredVerifiedEmails removes verified markers that were never
// consumed by a submission.
func (db *Database) DeleteExpiredVerifiedEmails(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM verified_emails WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("database: failed to delete expired verified emails: %w", err)
	}
	return tag.RowsAffected(), nil
}
