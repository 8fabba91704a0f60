package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testCart(lines ...CartLine) Cart {
	return Cart{OrderID: uuid.New(), Lines: lines}
}

func TestEvaluator_MinimumOrderAmount(t *testing.T) {
	eval := NewEvaluator(DefaultRegistry())
	promo := &Promotion{
		ID:      uuid.New(),
		Name:    "10% over 1500",
		Enabled: true,
		Conditions: []ConditionConfig{
			{Code: "minimum_order_amount", Args: Args{"amount": "1500"}},
		},
		Actions: []ActionConfig{
			{Code: "order_percentage_discount", Args: Args{"discount": "10"}},
		},
	}

	t.Run("satisfied condition produces discount", func(t *testing.T) {
		cart := testCart(CartLine{ID: uuid.New(), VariantID: uuid.New(), Quantity: 2, UnitPrice: dec("1000")})

		res, err := eval.Evaluate(context.Background(), cart, []*Promotion{promo})
		require.NoError(t, err)

		require.Len(t, res.OrderDiscounts, 1)
		assert.True(t, res.OrderDiscounts[0].Amount.Equal(dec("-200")),
			"got %s", res.OrderDiscounts[0].Amount)
		assert.Equal(t, promo.ID.String(), res.OrderDiscounts[0].PromotionID)
	})

	t.Run("unsatisfied condition produces nothing", func(t *testing.T) {
		cart := testCart(CartLine{ID: uuid.New(), VariantID: uuid.New(), Quantity: 1, UnitPrice: dec("1000")})

		res, err := eval.Evaluate(context.Background(), cart, []*Promotion{promo})
		require.NoError(t, err)
		assert.Empty(t, res.OrderDiscounts)
		assert.Empty(t, res.LineDiscounts)
	})
}

func TestEvaluator_CouponGating(t *testing.T) {
	eval := NewEvaluator(DefaultRegistry())
	promo := &Promotion{
		ID:         uuid.New(),
		Name:       "coupon only",
		Enabled:    true,
		CouponCode: "SAVE5",
		Actions: []ActionConfig{
			{Code: "order_fixed_discount", Args: Args{"amount": "5"}},
		},
	}
	line := CartLine{ID: uuid.New(), VariantID: uuid.New(), Quantity: 1, UnitPrice: dec("50")}

	t.Run("skipped without applied code", func(t *testing.T) {
		res, err := eval.Evaluate(context.Background(), testCart(line), []*Promotion{promo})
		require.NoError(t, err)
		assert.Empty(t, res.OrderDiscounts)
	})

	t.Run("applies with code present", func(t *testing.T) {
		cart := testCart(line)
		cart.CouponCodes = []string{"SAVE5"}

		res, err := eval.Evaluate(context.Background(), cart, []*Promotion{promo})
		require.NoError(t, err)
		require.Len(t, res.OrderDiscounts, 1)
		assert.True(t, res.OrderDiscounts[0].Amount.Equal(dec("-5")))
	})
}

func TestEvaluator_DeterministicOrdering(t *testing.T) {
	eval := NewEvaluator(DefaultRegistry())

	// Line action has score 0, order action has score 10; the line-level
	// promotion must evaluate first regardless of input order.
	linePromo := &Promotion{
		ID:      uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		Name:    "line 10%",
		Enabled: true,
		Conditions: []ConditionConfig{
			{Code: "minimum_quantity", Args: Args{"quantity": "1"}},
		},
		Actions: []ActionConfig{{Code: "line_percentage_discount", Args: Args{"discount": "10"}}},
	}
	orderPromo := &Promotion{
		ID:      uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		Name:    "order 5%",
		Enabled: true,
		Conditions: []ConditionConfig{
			{Code: "minimum_quantity", Args: Args{"quantity": "1"}},
		},
		Actions: []ActionConfig{{Code: "order_percentage_discount", Args: Args{"discount": "5"}}},
	}
	reg := DefaultRegistry()
	linePromo.PriorityScore = linePromo.ComputePriorityScore(reg)
	orderPromo.PriorityScore = orderPromo.ComputePriorityScore(reg)
	require.Less(t, linePromo.PriorityScore, orderPromo.PriorityScore)

	cart := testCart(CartLine{ID: uuid.New(), VariantID: uuid.New(), Quantity: 1, UnitPrice: dec("100")})

	first, err := eval.Evaluate(context.Background(), cart, []*Promotion{orderPromo, linePromo})
	require.NoError(t, err)
	second, err := eval.Evaluate(context.Background(), cart, []*Promotion{linePromo, orderPromo})
	require.NoError(t, err)

	assert.Equal(t, first, second, "evaluation must not depend on input order")
	require.Len(t, first.LineDiscounts, 1)
	require.Len(t, first.OrderDiscounts, 1)
}

func TestEvaluator_Idempotent(t *testing.T) {
	eval := NewEvaluator(DefaultRegistry())
	promo := &Promotion{
		ID:      uuid.New(),
		Name:    "free cheapest",
		Enabled: true,
		Conditions: []ConditionConfig{
			{Code: "minimum_quantity", Args: Args{"quantity": "2"}},
		},
		Actions: []ActionConfig{{Code: "free_cheapest_item", Args: nil}},
	}
	cart := testCart(
		CartLine{ID: uuid.New(), VariantID: uuid.New(), Quantity: 1, UnitPrice: dec("30")},
		CartLine{ID: uuid.New(), VariantID: uuid.New(), Quantity: 1, UnitPrice: dec("12.50")},
	)

	first, err := eval.Evaluate(context.Background(), cart, []*Promotion{promo})
	require.NoError(t, err)
	second, err := eval.Evaluate(context.Background(), cart, []*Promotion{promo})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first.OrderDiscounts, 1)
	assert.True(t, first.OrderDiscounts[0].Amount.Equal(dec("-12.50")))
}

func TestEvaluator_UnknownCondition(t *testing.T) {
	eval := NewEvaluator(DefaultRegistry())
	promo := &Promotion{
		ID:         uuid.New(),
		Name:       "broken",
		Enabled:    true,
		Conditions: []ConditionConfig{{Code: "does_not_exist"}},
		Actions:    []ActionConfig{{Code: "order_fixed_discount", Args: Args{"amount": "1"}}},
	}

	_, err := eval.Evaluate(context.Background(), testCart(), []*Promotion{promo})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does_not_exist")
}

func TestCatalog_LinePercentageDiscount(t *testing.T) {
	eval := NewEvaluator(DefaultRegistry())
	variantA := uuid.New()
	variantB := uuid.New()
	promo := &Promotion{
		ID:      uuid.New(),
		Name:    "20% off variant A",
		Enabled: true,
		Conditions: []ConditionConfig{
			{Code: "contains_variants", Args: Args{"variantIds": variantA.String()}},
		},
		Actions: []ActionConfig{
			{Code: "line_percentage_discount", Args: Args{"discount": "20", "variantIds": variantA.String()}},
		},
	}
	lineA := CartLine{ID: uuid.New(), VariantID: variantA, Quantity: 2, UnitPrice: dec("40")}
	lineB := CartLine{ID: uuid.New(), VariantID: variantB, Quantity: 1, UnitPrice: dec("99")}

	res, err := eval.Evaluate(context.Background(), testCart(lineA, lineB), []*Promotion{promo})
	require.NoError(t, err)

	require.Len(t, res.LineDiscounts, 1)
	assert.Equal(t, lineA.ID, res.LineDiscounts[0].LineID)
	assert.True(t, res.LineDiscounts[0].Amount.Equal(dec("-16")), "got %s", res.LineDiscounts[0].Amount)
	assert.Empty(t, res.OrderDiscounts)
}

func TestCatalog_CustomerGroup(t *testing.T) {
	eval := NewEvaluator(DefaultRegistry())
	promo := &Promotion{
		ID:      uuid.New(),
		Name:    "members only 5%",
		Enabled: true,
		Conditions: []ConditionConfig{
			{Code: "customer_group", Args: Args{"group": "registered"}},
		},
		Actions: []ActionConfig{
			{Code: "order_percentage_discount", Args: Args{"discount": "5"}},
		},
	}
	line := CartLine{ID: uuid.New(), VariantID: uuid.New(), Quantity: 1, UnitPrice: dec("100")}

	t.Run("guest cart skipped", func(t *testing.T) {
		res, err := eval.Evaluate(context.Background(), testCart(line), []*Promotion{promo})
		require.NoError(t, err)
		assert.Empty(t, res.OrderDiscounts)
	})

	t.Run("registered customer qualifies", func(t *testing.T) {
		customerID := uuid.New()
		cart := testCart(line)
		cart.CustomerID = &customerID

		res, err := eval.Evaluate(context.Background(), cart, []*Promotion{promo})
		require.NoError(t, err)
		require.Len(t, res.OrderDiscounts, 1)
		assert.True(t, res.OrderDiscounts[0].Amount.Equal(dec("-5")))
	})

	t.Run("unknown group errors", func(t *testing.T) {
		bad := &Promotion{
			ID:         uuid.New(),
			Name:       "bad group",
			Enabled:    true,
			Conditions: []ConditionConfig{{Code: "customer_group", Args: Args{"group": "wholesale"}}},
			Actions:    []ActionConfig{{Code: "order_fixed_discount", Args: Args{"amount": "1"}}},
		}
		_, err := eval.Evaluate(context.Background(), testCart(line), []*Promotion{bad})
		require.Error(t, err)
	})
}

func TestPromotion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		promo   Promotion
		wantErr error
	}{
		{
			name:    "no condition and no code rejected",
			promo:   Promotion{Name: "bare"},
			wantErr: ErrNoConditionOrCode,
		},
		{
			name:  "coupon code alone is enough",
			promo: Promotion{Name: "code", CouponCode: "X"},
		},
		{
			name: "condition alone is enough",
			promo: Promotion{
				Name:       "cond",
				Conditions: []ConditionConfig{{Code: "minimum_quantity", Args: Args{"quantity": "1"}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.promo.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPromotion_WindowContains(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		promo Promotion
		want  bool
	}{
		{"open window", Promotion{}, true},
		{"inside window", Promotion{StartsAt: &past, EndsAt: &future}, true},
		{"before start", Promotion{StartsAt: &future}, false},
		{"after end", Promotion{EndsAt: &past}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.promo.WindowContains(now))
		})
	}
}
