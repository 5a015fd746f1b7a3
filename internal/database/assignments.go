package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type UserPrinterAssignment struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	InventoryItemID uuid.UUID
	InstitutionID   string
	Department      string
	AssignedAt      time.Time
}

type CreateUserPrinterAssignmentParams struct {
	UserID          uuid.UUID
	InventoryItemID uuid.UUID
	InstitutionID   string
	Department      string
}

func (db *Database) CreateUserPrinterAssignment(ctx context.Context, params CreateUserPrinterAssignmentParams) (UserPrinterAssignment, error) {
	assignment := UserPrinterAssignment{
		ID:              uuid.New(),
		UserID:          params.UserID,
		InventoryItemID: params.InventoryItemID,
		InstitutionID:   params.InstitutionID,
		Department:      params.Department,
		AssignedAt:      time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO user_printer_assignments (id, user_id, inventory_item_id, institution_id, department, assigned_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		assignment.ID, assignment.UserID, assignment.InventoryItemID, assignment.InstitutionID, assignment.Department, assignment.AssignedAt); err != nil {
		return assignment, fmt.Errorf("database: failed to insert user printer assignment (user_id=%s): %w", assignment.UserID, err)
	}
	return assignment, nil
}

func (db *Database) CountUserPrinterAssignments(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_printer_assignments WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("database: failed to count user printer assignments (user_id=%s): %w", userID, err)
	}
	return count, nil
}
