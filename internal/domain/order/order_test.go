package order

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		code := GenerateCode()
		assert.Len(t, code, 13)
		assert.Equal(t, byte('C'), code[0])
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestLineSetQuantity(t *testing.T) {
	l := NewLine(uuid.New(), decimal.NewFromInt(500), 3)
	require.Len(t, l.Items, 3)

	l.SetQuantity(5)
	assert.Equal(t, 5, l.Quantity)
	assert.Len(t, l.Items, 5)

	l.SetQuantity(2)
	assert.Equal(t, 2, l.Quantity)
}

func TestLineSetQuantitySkipsConsumedItems(t *testing.T) {
	l := NewLine(uuid.New(), decimal.NewFromInt(500), 3)
	ffID := uuid.New()
	l.Items[0].FulfillmentID = &ffID
	refID := uuid.New()
	l.Items[1].RefundID = &refID

	// Only the free third item can be removed.
	l.SetQuantity(1)
	assert.Equal(t, 2, l.Quantity)
	assert.NotNil(t, l.Items[0].FulfillmentID)
	assert.NotNil(t, l.Items[1].RefundID)
}

func TestLineTotals(t *testing.T) {
	l := NewLine(uuid.New(), decimal.NewFromInt(500), 4)
	assert.True(t, l.SubTotal().Equal(decimal.NewFromInt(2000)))

	l.Adjustments = append(l.Adjustments, Adjustment{Type: AdjustmentPromotion, Amount: decimal.NewFromInt(-200)})
	assert.True(t, l.AdjustmentTotal().Equal(decimal.NewFromInt(-200)))
	assert.True(t, l.Total().Equal(decimal.NewFromInt(1800)))

	l.ClearAdjustments()
	assert.True(t, l.Total().Equal(decimal.NewFromInt(2000)))
}

func TestOrderCouponCodes(t *testing.T) {
	ord := New(nil)

	ord.ApplyCouponCode("SAVE10")
	ord.ApplyCouponCode("SAVE10")
	require.Len(t, ord.CouponCodes, 1)
	assert.True(t, ord.HasCouponCode("SAVE10"))

	ord.RemoveCouponCode("MISSING")
	require.Len(t, ord.CouponCodes, 1)

	ord.RemoveCouponCode("SAVE10")
	assert.Empty(t, ord.CouponCodes)
}

func TestOrderItemLookup(t *testing.T) {
	ord := New(nil)
	ord.Lines = append(ord.Lines, NewLine(uuid.New(), decimal.NewFromInt(100), 2))

	want := ord.Lines[0].Items[1]
	item, line := ord.Item(want.ID)
	require.Same(t, want, item)
	assert.Same(t, ord.Lines[0], line)

	item, line = ord.Item(uuid.New())
	assert.Nil(t, item)
	assert.Nil(t, line)
}

func TestOrderAllItemsCancelled(t *testing.T) {
	ord := New(nil)
	assert.True(t, ord.AllItemsCancelled(), "an empty order counts as fully cancelled")

	ord.Lines = append(ord.Lines, NewLine(uuid.New(), decimal.NewFromInt(100), 2))
	assert.False(t, ord.AllItemsCancelled())

	ord.Lines[0].Items[0].Cancelled = true
	assert.False(t, ord.AllItemsCancelled())
	ord.Lines[0].Items[1].Cancelled = true
	assert.True(t, ord.AllItemsCancelled())
}

func TestOrderTerminalStates(t *testing.T) {
	ord := New(nil)
	assert.False(t, ord.IsTerminal())
	ord.State = StateFulfilled
	assert.True(t, ord.IsTerminal())
	ord.State = StateCancelled
	assert.True(t, ord.IsTerminal())
}
