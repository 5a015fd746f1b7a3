package inventory_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"printdesk/internal/database"
	"printdesk/internal/inventory"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetInstitutionByID(ctx context.Context, institutionID string) (database.Institution, error) {
	args := m.Called(institutionID)
	return args.Get(0).(database.Institution), args.Error(1)
}

func (m *mockStore) FindInstitutionPrinter(ctx context.Context, params database.FindInstitutionPrinterParams) (database.InventoryItem, error) {
	args := m.Called(params)
	return args.Get(0).(database.InventoryItem), args.Error(1)
}

func TestMatcher_Validate(t *testing.T) {
	itemID := uuid.New()

	t.Run("unknown_institution", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetInstitutionByID", "INST-404").Return(database.Institution{}, database.ErrInstitutionNotFound)
		matcher := inventory.NewMatcher(slog.Default(), store)

		_, err := matcher.Validate(context.Background(), "INST-404", nil)
		assert.ErrorIs(t, err, inventory.ErrUnknownInstitution)
	})

	t.Run("mixed_claims", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetInstitutionByID", "INST-1").Return(database.Institution{InstitutionID: "INST-1"}, nil)
		store.On("FindInstitutionPrinter", database.FindInstitutionPrinterParams{
			InstitutionID: "INST-1",
			SerialNumber:  "SN-100",
			Brand:         "HP",
		}).Return(database.InventoryItem{ID: itemID, Model: "LaserJet 4000"}, nil)
		store.On("FindInstitutionPrinter", database.FindInstitutionPrinterParams{
			InstitutionID: "INST-1",
			SerialNumber:  "SN-999",
			Brand:         "Epson",
		}).Return(database.InventoryItem{}, database.ErrInventoryItemNotFound)
		matcher := inventory.NewMatcher(slog.Default(), store)

		results, err := matcher.Validate(context.Background(), "INST-1", []inventory.PrinterClaim{
			{SerialNumber: " SN-100 ", Brand: "HP"},
			{SerialNumber: "SN-999", Brand: "Epson"},
			{SerialNumber: "", Brand: "Canon"},
		})
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.True(t, results[0].Matched)
		assert.Equal(t, itemID, results[0].ItemID.Val)
		assert.Equal(t, "LaserJet 4000", results[0].Model)

		assert.False(t, results[1].Matched)
		assert.Equal(t, "Not found in institution inventory", results[1].Reason)

		assert.False(t, results[2].Matched)
		assert.Equal(t, "Missing data", results[2].Reason)

		assert.Equal(t, 1, inventory.MatchedCount(results))
	})
}
