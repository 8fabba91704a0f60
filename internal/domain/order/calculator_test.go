package order

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/domain/promotion"
)

type staticPromos []*promotion.Promotion

func (s staticPromos) ActivePromotions(_ context.Context) ([]*promotion.Promotion, error) {
	return s, nil
}

func newCalculator(shipping ShippingEngine, promos ...*promotion.Promotion) *Calculator {
	return NewCalculator(
		promotion.NewEvaluator(promotion.DefaultRegistry()),
		staticPromos(promos),
		shipping,
		zap.NewNop(),
	)
}

func twoItemOrder(unitPrice int64) *Order {
	ord := New(nil)
	ord.Lines = append(ord.Lines, NewLine(uuid.New(), decimal.NewFromInt(unitPrice), 2))
	return ord
}

func thresholdPromo(percent, minimum int64) *promotion.Promotion {
	return &promotion.Promotion{
		ID:      uuid.New(),
		Name:    "volume discount",
		Enabled: true,
		Conditions: []promotion.ConditionConfig{{
			Code: "minimum_order_amount",
			Args: promotion.Args{"amount": decimal.NewFromInt(minimum).String()},
		}},
		Actions: []promotion.ActionConfig{{
			Code: "order_percentage_discount",
			Args: promotion.Args{"discount": decimal.NewFromInt(percent).String()},
		}},
	}
}

func TestCalculatorOrderDiscount(t *testing.T) {
	calc := newCalculator(&stubShipping{methodID: uuid.New()}, thresholdPromo(10, 1500))
	ord := twoItemOrder(1000)

	_, err := calc.ApplyPriceAdjustments(context.Background(), ord)
	require.NoError(t, err)

	assert.True(t, ord.SubTotal.Equal(decimal.NewFromInt(2000)))
	require.Len(t, ord.Adjustments, 1)
	assert.True(t, ord.Adjustments[0].Amount.Equal(decimal.NewFromInt(-200)))
	assert.True(t, ord.Total.Equal(decimal.NewFromInt(1800)))
}

func TestCalculatorBelowThreshold(t *testing.T) {
	calc := newCalculator(&stubShipping{methodID: uuid.New()}, thresholdPromo(10, 1500))
	ord := New(nil)
	ord.Lines = append(ord.Lines, NewLine(uuid.New(), decimal.NewFromInt(700), 2))

	_, err := calc.ApplyPriceAdjustments(context.Background(), ord)
	require.NoError(t, err)

	assert.Empty(t, ord.Adjustments)
	assert.True(t, ord.Total.Equal(decimal.NewFromInt(1400)))
}

func TestCalculatorIdempotent(t *testing.T) {
	calc := newCalculator(&stubShipping{methodID: uuid.New()}, thresholdPromo(10, 1500))
	ord := twoItemOrder(1000)

	for i := 0; i < 3; i++ {
		_, err := calc.ApplyPriceAdjustments(context.Background(), ord)
		require.NoError(t, err)
	}

	// Repeated recomputes never stack adjustments.
	require.Len(t, ord.Adjustments, 1)
	assert.True(t, ord.Total.Equal(decimal.NewFromInt(1800)))
}

func TestCalculatorChangedItems(t *testing.T) {
	promo := &promotion.Promotion{
		ID:      uuid.New(),
		Name:    "line sale",
		Enabled: true,
		Conditions: []promotion.ConditionConfig{{
			Code: "minimum_quantity",
			Args: promotion.Args{"quantity": "1"},
		}},
		Actions: []promotion.ActionConfig{{
			Code: "line_percentage_discount",
			Args: promotion.Args{"discount": "10"},
		}},
	}
	calc := newCalculator(&stubShipping{methodID: uuid.New()}, promo)

	ord := New(nil)
	ord.Lines = append(ord.Lines, NewLine(uuid.New(), decimal.NewFromInt(1000), 2))

	changed, err := calc.ApplyPriceAdjustments(context.Background(), ord)
	require.NoError(t, err)
	require.Len(t, changed, 2, "both items got a new effective price")
	for _, it := range ord.Items() {
		assert.True(t, it.AdjustedUnitPrice.Equal(decimal.NewFromInt(900)))
	}

	// A second pass changes nothing.
	changed, err = calc.ApplyPriceAdjustments(context.Background(), ord)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestCalculatorShippingCost(t *testing.T) {
	methodID := uuid.New()
	calc := newCalculator(&stubShipping{methodID: methodID, price: decimal.NewFromInt(100)})

	ord := twoItemOrder(1000)
	ord.ShippingMethodID = &methodID

	_, err := calc.ApplyPriceAdjustments(context.Background(), ord)
	require.NoError(t, err)
	assert.True(t, ord.ShippingCost.Equal(decimal.NewFromInt(100)))
	assert.True(t, ord.Total.Equal(decimal.NewFromInt(2100)))

	// Clearing the method zeroes the cost on the next recompute.
	ord.ShippingMethodID = nil
	_, err = calc.ApplyPriceAdjustments(context.Background(), ord)
	require.NoError(t, err)
	assert.True(t, ord.ShippingCost.IsZero())
	assert.True(t, ord.Total.Equal(decimal.NewFromInt(2000)))
}

func TestCalculatorIneligibleShippingFails(t *testing.T) {
	calc := newCalculator(&stubShipping{methodID: uuid.New()})

	ord := twoItemOrder(1000)
	unknown := uuid.New()
	ord.ShippingMethodID = &unknown

	_, err := calc.ApplyPriceAdjustments(context.Background(), ord)
	assert.ErrorIs(t, err, ErrShippingMethodNotEligible)
}
