package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"printdesk/internal/util"

	"github.com/google/uuid"
)

// AssignedPrinter is the inventory slice of a pending registration row.
type AssignedPrinter struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	SerialNumber  string    `json:"serial_number"`
	InstitutionID string    `json:"institution_id"`
}

type PendingRegistration struct {
	UserID           uuid.UUID
	FirstName        string
	LastName         string
	Email            string
	Department       string
	CreatedAt        time.Time
	InstitutionIDs   []string
	InstitutionNames []string
	Printers         []AssignedPrinter
}

type ListPendingRegistrationsParams struct {
	// CoordinatorID restricts the queue to registrants assigned to an
	// institution this coordinator administers. Unset means unscoped.
	CoordinatorID util.Optional[uuid.UUID]
}

// ListPendingRegistrations returns pending requester accounts with their
// claimed printers and matched institutions, newest first. A coordinator who
// administers no institution gets an empty list.
func (db *Database) ListPendingRegistrations(ctx context.Context, params ListPendingRegistrationsParams) ([]PendingRegistration, error) {
	var pending []PendingRegistration

	rows, err := db.Pool.Query(ctx, `
		SELECT u.id, u.first_name, u.last_name, u.email, u.department, u.created_at,
			COALESCE(array_agg(DISTINCT inst.institution_id) FILTER (WHERE inst.institution_id IS NOT NULL), '{}'),
			COALESCE(array_agg(DISTINCT inst.name) FILTER (WHERE inst.name IS NOT NULL), '{}'),
			COALESCE(json_agg(json_build_object(
				'id', inv.id,
				'name', inv.name,
				'brand', inv.brand,
				'model', inv.model,
				'serial_number', inv.serial_number,
				'institution_id', upa.institution_id
			)) FILTER (WHERE inv.id IS NOT NULL), '[]')
		FROM users u
		LEFT JOIN user_printer_assignments upa ON upa.user_id = u.id
		LEFT JOIN institutions inst ON inst.institution_id = upa.institution_id
		LEFT JOIN inventory_items inv ON inv.id = upa.inventory_item_id
		WHERE u.role = 'requester' AND u.approval_status = 'pending'
			AND ($1::uuid IS NULL OR EXISTS (
				SELECT 1 FROM user_printer_assignments sa
				JOIN institutions si ON si.institution_id = sa.institution_id
				WHERE sa.user_id = u.id AND si.coordinator_id = $1))
		GROUP BY u.id
		ORDER BY u.created_at DESC`,
		params.CoordinatorID.Ptr())
	if err != nil {
		return nil, fmt.Errorf("database: failed to list pending registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reg PendingRegistration
		var printersJSON []byte
		if err := rows.Scan(&reg.UserID, &reg.FirstName, &reg.LastName, &reg.Email, &reg.Department, &reg.CreatedAt,
			&reg.InstitutionIDs, &reg.InstitutionNames, &printersJSON); err != nil {
			return nil, fmt.Errorf("database: failed to scan pending registration: %w", err)
		}
		if err := json.Unmarshal(printersJSON, &reg.Printers); err != nil {
			return nil, fmt.Errorf("database: failed to decode printers for pending registration (user_id=%s): %w", reg.UserID, err)
		}
		pending = append(pending, reg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate pending registrations: %w", err)
	}

	return pending, nil
}

type RegistrationHistoryEntry struct {
	UserID           uuid.UUID
	Email            string
	FirstName        string
	LastName         string
	Department       string
	InstitutionIDs   []string
	InstitutionNames []string
	Printers         []AssignedPrinter
	Status           ApprovalStatus
	RejectionReason  util.Optional[string]
	ReviewedBy       util.Optional[uuid.UUID]
	ReviewedAt       util.Optional[time.Time]
	CreatedAt        time.Time
}

type ListRegistrationHistoryParams struct {
	// CoordinatorID restricts the listing to the coordinator's institutions,
	// same contract as the pending queue.
	CoordinatorID util.Optional[uuid.UUID]
}

// ListRegistrationHistory returns resolved registrations: approved requesters
// still in users, plus rejected rows preserved in the history table. Approved
// entries carry their institutions and assigned printers; rejected entries
// keep whatever institution the history row recorded, their assignments are
// gone. Newest resolution first.
func (db *Database) ListRegistrationHistory(ctx context.Context, params ListRegistrationHistoryParams) ([]RegistrationHistoryEntry, error) {
	var entries []RegistrationHistoryEntry

	rows, err := db.Pool.Query(ctx, `
		SELECT u.id, u.email, u.first_name, u.last_name, u.department,
			COALESCE((SELECT array_agg(DISTINCT a.institution_id)
				FROM user_printer_assignments a WHERE a.user_id = u.id), '{}'),
			COALESCE((SELECT array_agg(DISTINCT i.name)
				FROM user_printer_assignments a
				JOIN institutions i ON i.institution_id = a.institution_id
				WHERE a.user_id = u.id), '{}'),
			COALESCE((SELECT json_agg(json_build_object(
					'id', inv.id,
					'name', inv.name,
					'brand', inv.brand,
					'model', inv.model,
					'serial_number', inv.serial_number,
					'institution_id', a.institution_id))
				FROM user_printer_assignments a
				JOIN inventory_items inv ON inv.id = a.inventory_item_id
				WHERE a.user_id = u.id), '[]'),
			'approved'::text, NULL::text, u.approved_by, u.approved_at, u.created_at
		FROM users u
		WHERE u.role = 'requester' AND u.approval_status = 'approved'
			AND ($1::uuid IS NULL OR EXISTS (
				SELECT 1 FROM user_printer_assignments sa
				JOIN institutions si ON si.institution_id = sa.institution_id
				WHERE sa.user_id = u.id AND si.coordinator_id = $1))
		UNION ALL
		SELECT h.user_id, h.email, h.first_name, h.last_name, h.department,
			CASE WHEN h.institution_id IS NULL THEN '{}'::text[] ELSE ARRAY[h.institution_id] END,
			COALESCE((SELECT array_agg(i.name) FROM institutions i WHERE i.institution_id = h.institution_id), '{}'),
			'[]'::json,
			h.status, h.rejection_reason, h.reviewed_by, h.reviewed_at, h.created_at
		FROM requester_registration_history h
		WHERE h.status = 'rejected'
			AND ($1::uuid IS NULL OR h.institution_id IN (
				SELECT institution_id FROM institutions WHERE coordinator_id = $1))
		ORDER BY 12 DESC NULLS LAST`,
		params.CoordinatorID.Ptr())
	if err != nil {
		return nil, fmt.Errorf("database: failed to list registration history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry RegistrationHistoryEntry
		var printersJSON []byte
		if err := rows.Scan(&entry.UserID, &entry.Email, &entry.FirstName, &entry.LastName, &entry.Department,
			&entry.InstitutionIDs, &entry.InstitutionNames, &printersJSON,
			&entry.Status, &entry.RejectionReason, &entry.ReviewedBy, &entry.ReviewedAt, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan registration history entry: %w", err)
		}
		if err := json.Unmarshal(printersJSON, &entry.Printers); err != nil {
			return nil, fmt.Errorf("database: failed to decode printers for history entry (user_id=%s): %w", entry.UserID, err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate registration history: %w", err)
	}

	return entries, nil
}
