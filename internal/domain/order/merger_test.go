package order

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderWithLine(customerID *uuid.UUID, variantID uuid.UUID, price int64, qty int) *Order {
	ord := New(customerID)
	ord.Lines = append(ord.Lines, NewLine(variantID, decimal.NewFromInt(price), qty))
	return ord
}

func TestMergerPrecedence(t *testing.T) {
	customerID := uuid.New()
	owned := New(&customerID)
	existing := New(&customerID)
	guest := New(nil)

	m := NewMerger(MergeLinesStrategy{})

	t.Run("nil guest keeps existing", func(t *testing.T) {
		res := m.Merge(nil, existing)
		assert.Same(t, existing, res.Order)
		assert.Nil(t, res.OrderToDelete)
	})

	t.Run("owned guest is never merged", func(t *testing.T) {
		res := m.Merge(owned, existing)
		assert.Same(t, existing, res.Order)
		assert.Nil(t, res.OrderToDelete)
	})

	t.Run("owned guest without existing survives", func(t *testing.T) {
		res := m.Merge(owned, nil)
		assert.Same(t, owned, res.Order)
	})

	t.Run("guest without existing survives", func(t *testing.T) {
		res := m.Merge(guest, nil)
		assert.Same(t, guest, res.Order)
		assert.Nil(t, res.OrderToDelete)
	})
}

func TestMergeLinesStrategy(t *testing.T) {
	shared := uuid.New()
	guestOnly := uuid.New()

	guest := orderWithLine(nil, shared, 900, 2)
	guest.Lines = append(guest.Lines, NewLine(guestOnly, decimal.NewFromInt(250), 1))
	existing := orderWithLine(nil, shared, 1000, 1)

	res := MergeLinesStrategy{}.Merge(guest, existing)
	require.Same(t, existing, res.Order)
	require.Same(t, guest, res.OrderToDelete)

	// Shared variant: quantities add, the existing price snapshot wins.
	line := existing.LineWithVariant(shared)
	require.NotNil(t, line)
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, line.UnitPrice.Equal(decimal.NewFromInt(1000)))

	// Guest-only variant: inserted as a new line with the guest snapshot.
	line = existing.LineWithVariant(guestOnly)
	require.NotNil(t, line)
	assert.Equal(t, 1, line.Quantity)
	assert.True(t, line.UnitPrice.Equal(decimal.NewFromInt(250)))
	require.Len(t, res.LinesToInsert, 1)
	assert.Same(t, line, res.LinesToInsert[0])
}

func TestUseExistingStrategy(t *testing.T) {
	guest := orderWithLine(nil, uuid.New(), 900, 2)
	existing := orderWithLine(nil, uuid.New(), 1000, 1)

	res := UseExistingStrategy{}.Merge(guest, existing)
	assert.Same(t, existing, res.Order)
	assert.Same(t, guest, res.OrderToDelete)
	assert.Empty(t, res.LinesToInsert)
	assert.Equal(t, 1, existing.Lines[0].Quantity)
}
