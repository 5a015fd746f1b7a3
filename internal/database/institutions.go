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

// Institution ids are human-assigned string codes, not uuids.
type Institution struct {
	InstitutionID   string
	Name            string
	InstitutionType string
	CoordinatorID   util.Optional[uuid.UUID]
	CreatedAt       time.Time
}

func (db *Database) GetInstitutionByID(ctx context.Context, institutionID string) (Institution, error) {
	var institution Institution

	err := db.Pool.QueryRow(ctx, `SELECT institution_id, name, institution_type, coordinator_id, created_at FROM institutions WHERE institution_id = $1`,
		institutionID).Scan(
		&institution.InstitutionID, &institution.Name, &institution.InstitutionType, &institution.CoordinatorID, &institution.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return institution, ErrInstitutionNotFound
		}
		return institution, fmt.Errorf("database: failed to scan institution (id=%s): %w", institutionID, err)
	}
	return institution, nil
}
