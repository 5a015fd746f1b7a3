package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"printdesk/internal/database"
	"printdesk/internal/util"
)

var ErrUnknownInstitution = errors.New("unknown institution")

// PrinterClaim is what a requester says they have: a serial number and the
// brand printed on the device.
type PrinterClaim struct {
	SerialNumber string `json:"serial_number"`
	Brand        string `json:"brand"`
}

// MatchResult reports whether a claim resolved to an inventory item assigned
// to the institution, with a human readable reason when it did not.
type MatchResult struct {
	SerialNumber string                   `json:"serial_number"`
	Brand        string                   `json:"brand"`
	Matched      bool                     `json:"matched"`
	Reason       string                   `json:"reason,omitempty"`
	ItemID       util.Optional[uuid.UUID] `json:"item_id,omitempty"`
	Model        string                   `json:"model,omitempty"`
}

type Store interface {
	GetInstitutionByID(ctx context.Context, institutionID string) (database.Institution, error)
	FindInstitutionPrinter(ctx context.Context, params database.FindInstitutionPrinterParams) (database.InventoryItem, error)
}

// Matcher validates printer claims against the inventory assigned to an
// institution.
type Matcher struct {
	logger *slog.Logger
	store  Store
}

func NewMatcher(logger *slog.Logger, store Store) Matcher {
	return Matcher{logger: logger, store: store}
}

// Validate resolves every claim against the institution's assigned printers.
// Results come back in claim order, one per claim; a claim with a blank
// serial or brand never reaches the database.
func (m *Matcher) Validate(ctx context.Context, institutionID string, claims []PrinterClaim) ([]MatchResult, error) {
	institutionID = strings.TrimSpace(institutionID)

	if _, err := m.store.GetInstitutionByID(ctx, institutionID); err != nil {
		if errors.Is(err, database.ErrInstitutionNotFound) {
			return nil, ErrUnknownInstitution
		}
		return nil, fmt.Errorf("inventory: failed to look up institution: %w", err)
	}

	results := make([]MatchResult, 0, len(claims))
	for _, claim := range claims {
		result := MatchResult{
			SerialNumber: strings.TrimSpace(claim.SerialNumber),
			Brand:        strings.TrimSpace(claim.Brand),
		}

		if result.SerialNumber == "" || result.Brand == "" {
			result.Reason = "Missing data"
			results = append(results, result)
			continue
		}

		item, err := m.store.FindInstitutionPrinter(ctx, database.FindInstitutionPrinterParams{
			InstitutionID: institutionID,
			SerialNumber:  result.SerialNumber,
			Brand:         result.Brand,
		})
		if err != nil {
			if errors.Is(err, database.ErrInventoryItemNotFound) {
				result.Reason = "Not found in institution inventory"
				results = append(results, result)
				continue
			}
			return nil, fmt.Errorf("inventory: failed to match printer: %w", err)
		}

		result.Matched = true
		result.ItemID = util.Some(item.ID)
		result.Model = item.Model
		results = append(results, result)
	}

	return results, nil
}

// MatchedCount is a convenience over a result set.
func MatchedCount(results []MatchResult) int {
	var n int
	for _, r := range results {
		if r.Matched {
			n++
		}
	}
	return n
}
