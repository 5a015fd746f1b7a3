package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"printdesk/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ApproveRegistrationParams struct {
	UserID     uuid.UUID
	ReviewerID uuid.UUID
	// CoordinatorID limits the transition to registrants assigned to an
	// institution this coordinator administers. Unset means unscoped.
	CoordinatorID util.Optional[uuid.UUID]
}

type ApproveRegistrationResult struct {
	User         User
	PrinterCount int
	Photos       util.Optional[PhotoSet]
}

// ApproveRegistration flips a pending requester to approved in one
// transaction. The conditional UPDATE guards against a concurrent resolution
// and enforces the coordinator scope: zero affected rows means the
// registration was already resolved or is outside the coordinator's
// institutions, and ErrRegistrationNotPending is returned. The photo row is
// read and removed in the same transaction; deleting the stored objects is
// the caller's business.
func (db *Database) ApproveRegistration(ctx context.Context, params ApproveRegistrationParams) (ApproveRegistrationResult, error) {
	var result ApproveRegistrationResult

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET approval_status = 'approved', approved_by = $2, approved_at = $3, updated_at = $3
		WHERE id = $1 AND role = 'requester' AND approval_status = 'pending'
			AND ($4::uuid IS NULL OR EXISTS (
				SELECT 1 FROM user_printer_assignments a
				JOIN institutions i ON i.institution_id = a.institution_id
				WHERE a.user_id = users.id AND i.coordinator_id = $4))
		RETURNING id, first_name, last_name, email, password_hash, role, approval_status, email_verified_at, approved_by, approved_at, department, created_at, updated_at`,
		params.UserID, params.ReviewerID, now, params.CoordinatorID.Ptr()).Scan(
		&result.User.ID, &result.User.FirstName, &result.User.LastName, &result.User.Email, &result.User.PasswordHash,
		&result.User.Role, &result.User.ApprovalStatus, &result.User.EmailVerifiedAt, &result.User.ApprovedBy,
		&result.User.ApprovedAt, &result.User.Department, &result.User.CreatedAt, &result.User.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return result, ErrRegistrationNotPending
		}
		return result, fmt.Errorf("database: failed to approve registration (user_id=%s): %w", params.UserID, err)
	}

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM user_printer_assignments WHERE user_id = $1`, params.UserID).Scan(&result.PrinterCount); err != nil {
		return result, fmt.Errorf("database: failed to count printer assignments (user_id=%s): %w", params.UserID, err)
	}

	var photos PhotoSet
	err = tx.QueryRow(ctx, `SELECT user_id, front_id_photo, back_id_photo, selfie_photo, front_id_key, back_id_key, selfie_key, created_at FROM temp_user_photos WHERE user_id = $1`,
		params.UserID).Scan(
		&photos.UserID, &photos.FrontIDPhoto, &photos.BackIDPhoto, &photos.SelfiePhoto, &photos.FrontIDKey, &photos.BackIDKey, &photos.SelfieKey, &photos.CreatedAt)
	switch {
	case err == nil:
		result.Photos = util.Some(photos)
		if _, err := tx.Exec(ctx, `DELETE FROM temp_user_photos WHERE user_id = $1`, params.UserID); err != nil {
			return result, fmt.Errorf("database: failed to delete photo set (user_id=%s): %w", params.UserID, err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		result.Photos = util.None[PhotoSet]()
	default:
		return result, fmt.Errorf("database: failed to scan photo set (user_id=%s): %w", params.UserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("database: failed to commit approval (user_id=%s): %w", params.UserID, err)
	}
	return result, nil
}

type RejectRegistrationParams struct {
	UserID     uuid.UUID
	ReviewerID uuid.UUID
	// Reason may be empty; it is preserved as given on the history row.
	Reason string
	// CoordinatorID carries the same scope contract as approval.
	CoordinatorID util.Optional[uuid.UUID]
}

type RejectRegistrationResult struct {
	User   User
	Photos util.Optional[PhotoSet]
}

// RejectRegistration removes a pending requester in one transaction, first
// preserving an append-only history row carrying the rejection reason and the
// original registration timestamp. A concurrent resolution or a registrant
// outside the coordinator's institutions surfaces as
// ErrRegistrationNotPending.
func (db *Database) RejectRegistration(ctx context.Context, params RejectRegistrationParams) (RejectRegistrationResult, error) {
	var result RejectRegistrationResult

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, password_hash, role, approval_status, email_verified_at, approved_by, approved_at, department, created_at, updated_at
		FROM users
		WHERE id = $1 AND role = 'requester' AND approval_status = 'pending'
			AND ($2::uuid IS NULL OR EXISTS (
				SELECT 1 FROM user_printer_assignments a
				JOIN institutions i ON i.institution_id = a.institution_id
				WHERE a.user_id = users.id AND i.coordinator_id = $2))
		FOR UPDATE`,
		params.UserID, params.CoordinatorID.Ptr()).Scan(
		&result.User.ID, &result.User.FirstName, &result.User.LastName, &result.User.Email, &result.User.PasswordHash,
		&result.User.Role, &result.User.ApprovalStatus, &result.User.EmailVerifiedAt, &result.User.ApprovedBy,
		&result.User.ApprovedAt, &result.User.Department, &result.User.CreatedAt, &result.User.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return result, ErrRegistrationNotPending
		}
		return result, fmt.Errorf("database: failed to lock registration (user_id=%s): %w", params.UserID, err)
	}

	now := time.Now().UTC()
	var institutionID util.Optional[string]
	if err := tx.QueryRow(ctx, `SELECT institution_id FROM user_printer_assignments WHERE user_id = $1 LIMIT 1`, params.UserID).Scan(&institutionID.Val); err == nil {
		institutionID.IsSet = true
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return result, fmt.Errorf("database: failed to read institution for history (user_id=%s): %w", params.UserID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO requester_registration_history (id, user_id, email, first_name, last_name, department, institution_id, status, rejection_reason, reviewed_by, reviewed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'rejected', $8, $9, $10, $11)`,
		uuid.New(), result.User.ID, result.User.Email, result.User.FirstName, result.User.LastName,
		result.User.Department, institutionID, params.Reason, params.ReviewerID, now, result.User.CreatedAt); err != nil {
		return result, fmt.Errorf("database: failed to insert rejection history (user_id=%s): %w", params.UserID, err)
	}

	var photos PhotoSet
	err = tx.QueryRow(ctx, `SELECT user_id, front_id_photo, back_id_photo, selfie_photo, front_id_key, back_id_key, selfie_key, created_at FROM temp_user_photos WHERE user_id = $1`,
		params.UserID).Scan(
		&photos.UserID, &photos.FrontIDPhoto, &photos.BackIDPhoto, &photos.SelfiePhoto, &photos.FrontIDKey, &photos.BackIDKey, &photos.SelfieKey, &photos.CreatedAt)
	switch {
	case err == nil:
		result.Photos = util.Some(photos)
		if _, err := tx.Exec(ctx, `DELETE FROM temp_user_photos WHERE user_id = $1`, params.UserID); err != nil {
			return result, fmt.Errorf("database: failed to delete photo set (user_id=%s): %w", params.UserID, err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		result.Photos = util.None[PhotoSet]()
	default:
		return result, fmt.Errorf("database: failed to scan photo set (user_id=%s): %w", params.UserID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_printer_assignments WHERE user_id = $1`, params.UserID); err != nil {
		return result, fmt.Errorf("database: failed to delete printer assignments (user_id=%s): %w", params.UserID, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1 AND approval_status = 'pending'`, params.UserID)
	if err != nil {
		return result, fmt.Errorf("database: failed to delete user (user_id=%s): %w", params.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return result, ErrRegistrationNotPending
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("database: failed to commit rejection (user_id=%s): %w", params.UserID, err)
	}
	return result, nil
}
