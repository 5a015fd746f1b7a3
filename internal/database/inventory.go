package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type InventoryItem struct {
	ID           uuid.UUID
	Name         string
	Brand        string
	Model        string
	SerialNumber string
	Category     string
	CreatedAt    time.Time
}

type FindInstitutionPrinterParams struct {
	InstitutionID string
	SerialNumber  string
	Brand         string
}

// FindInstitutionPrinter resolves a claimed printer against the units assigned
// to the institution. Serial numbers compare equal after lowercasing and
// trimming; brand is a case-insensitive substring match.
func (db *Database) FindInstitutionPrinter(ctx context.Context, params FindInstitutionPrinterParams) (InventoryItem, error) {
	var item InventoryItem

	err := db.Pool.QueryRow(ctx, `
		SELECT i.id, i.name, i.brand, i.model, i.serial_number, i.category, i.created_at
		FROM inventory_items i
		JOIN client_printer_assignments cpa ON cpa.inventory_item_id = i.id
		WHERE cpa.institution_id = $1
		  AND i.category = 'printer'
		  AND LOWER(TRIM(i.serial_number)) = LOWER(TRIM($2))
		  AND LOWER(TRIM(i.brand)) LIKE '%' || LOWER(TRIM($3)) || '%'
		LIMIT 1`,
		params.InstitutionID, params.SerialNumber, params.Brand).Scan(
		&item.ID, &item.Name, &item.Brand, &item.Model, &item.SerialNumber, &item.Category, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return item, ErrInventoryItemNotFound
		}
		return item, fmt.Errorf("database: failed to scan inventory item (institution_id=%s): %w", params.InstitutionID, err)
	}
	return item, nil
}
