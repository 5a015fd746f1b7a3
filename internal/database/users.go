package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"printdesk/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UserRole string

const (
	UserRoleRequester   UserRole = "requester"
	UserRoleCoordinator UserRole = "coordinator"
	UserRoleTechnician  UserRole = "technician"
	UserRoleAdmin       UserRole = "admin"
)

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

type User struct {
	ID              uuid.UUID
	FirstName       string
	LastName        string
	Email           string
	PasswordHash    string
	Role            UserRole
	ApprovalStatus  ApprovalStatus
	EmailVerifiedAt util.Optional[time.Time]
	ApprovedBy      util.Optional[uuid.UUID]
	ApprovedAt      util.Optional[time.Time]
	Department      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateUserParams struct {
	FirstName       string
	LastName        string
	Email           string
	PasswordHash    string
	Role            UserRole
	ApprovalStatus  ApprovalStatus
	EmailVerifiedAt util.Optional[time.Time]
	Department      string
}

func (db *Database) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	user := User{
		ID:              uuid.New(),
		FirstName:       params.FirstName,
		LastName:        params.LastName,
		Email:           params.Email,
		PasswordHash:    params.PasswordHash,
		Role:            params.Role,
		ApprovalStatus:  params.ApprovalStatus,
		EmailVerifiedAt: params.EmailVerifiedAt,
		Department:      params.Department,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO users (id, first_name, last_name, email, password_hash, role, approval_status, email_verified_at, approved_by, approved_at, department, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash, user.Role, user.ApprovalStatus, user.EmailVerifiedAt, user.ApprovedBy, user.ApprovedAt, user.Department, user.CreatedAt, user.UpdatedAt); err != nil {
		return user, fmt.Errorf("database: failed to insert user (email=%s): %w", user.Email, err)
	}
	return user, nil
}

func (db *Database) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return db.GetUser(ctx, GetUserParams{ID: util.Some(id)})
}

func (db *Database) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return db.GetUser(ctx, GetUserParams{Email: util.Some(email)})
}

type GetUserParams struct {
	ID    util.Optional[uuid.UUID]
	Email util.Optional[string]
	Role  util.Optional[UserRole]
}

func (db *Database) GetUser(ctx context.Context, params GetUserParams) (User, error) {
	var user User

	var query strings.Builder
	query.WriteString(`SELECT id, first_name, last_name, email, password_hash, role, approval_status, email_verified_at, approved_by, approved_at, department, created_at, updated_at FROM users WHERE 1=1`)
	var args []any
	argNum := 1

	if params.ID.IsSet {
		query.WriteString(fmt.Sprintf(" AND id = $%d", argNum))
		args = append(args, params.ID.Val)
		argNum++
	}
	if params.Email.IsSet {
		query.WriteString(fmt.Sprintf(" AND LOWER(email) = LOWER($%d)", argNum))
		args = append(args, params.Email.Val)
		argNum++
	}
	if params.Role.IsSet {
		query.WriteString(fmt.Sprintf(" AND role = $%d", argNum))
		args = append(args, params.Role.Val)
		argNum++
	}

	err := db.Pool.QueryRow(ctx, query.String(), args...).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash, &user.Role, &user.ApprovalStatus, &user.EmailVerifiedAt, &user.ApprovedBy, &user.ApprovedAt, &user.Department, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		return user, fmt.Errorf("database: failed to scan user: %w", err)
	}
	return user, nil
}
