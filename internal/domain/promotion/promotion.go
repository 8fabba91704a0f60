// Package promotion implements configurable promotions: rules made of
// parameterized conditions and actions that produce order and line discounts.
// The evaluator works on a snapshot of the cart rather than the order
// aggregate itself, keeping conditions and actions pure functions of their
// input.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by repositories when no promotion matches.
var ErrNotFound = errors.New("promotion not found")

// ErrNoConditionOrCode rejects promotions that would apply unconditionally
// to every order.
var ErrNoConditionOrCode = errors.New("promotion needs at least one condition or a coupon code")

// Args carries the configured parameters of one condition or action instance.
type Args map[string]string

// Decimal parses the named argument as a decimal, with a fallback when the
// argument is absent or malformed.
func (a Args) Decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := a[key]
	if !ok {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fallback
	}
	return d
}

// ConditionConfig is one configured condition instance on a promotion.
type ConditionConfig struct {
	Code string `json:"code"`
	Args Args   `json:"args,omitempty"`
}

// ActionConfig is one configured action instance on a promotion.
type ActionConfig struct {
	Code string `json:"code"`
	Args Args   `json:"args,omitempty"`
}

// Promotion is a configured rule: when all conditions pass (and the coupon
// code, if any, has been applied to the order), the actions run and produce
// discounts.
type Promotion struct {
	ID               uuid.UUID
	Name             string
	Enabled          bool
	CouponCode       string
	StartsAt         *time.Time
	EndsAt           *time.Time
	PerCustomerLimit int
	Conditions       []ConditionConfig
	Actions          []ActionConfig
	// PriorityScore is the sum of the intrinsic priority weights of the
	// promotion's conditions and actions. Evaluation runs in ascending
	// score order, ties broken by id, so recomputation is deterministic.
	PriorityScore int
	CreatedAt     time.Time
}

// Validate checks the structural invariant: a promotion must be gated by at
// least one condition or a coupon code.
func (p *Promotion) Validate() error {
	if len(p.Conditions) == 0 && p.CouponCode == "" {
		return ErrNoConditionOrCode
	}
	return nil
}

// WindowContains reports whether t falls inside the promotion's validity
// window. Open-ended bounds always pass.
func (p *Promotion) WindowContains(t time.Time) bool {
	if p.StartsAt != nil && t.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && t.After(*p.EndsAt) {
		return false
	}
	return true
}

// ComputePriorityScore derives the priority score from the registry's
// intrinsic weights. Unknown codes contribute zero; they fail loudly at
// evaluation time instead.
func (p *Promotion) ComputePriorityScore(reg *Registry) int {
	score := 0
	for _, c := range p.Conditions {
		if cond, ok := reg.Condition(c.Code); ok {
			score += cond.Priority()
		}
	}
	for _, a := range p.Actions {
		if act, ok := reg.Action(a.Code); ok {
			score += act.Priority()
		}
	}
	return score
}

// Repository provides promotion lookup and per-customer usage accounting.
type Repository interface {
	// Active returns the enabled, non-deleted promotions.
	Active(ctx context.Context) ([]*Promotion, error)
	// FindByCouponCode returns the enabled promotion gated by the given
	// code, or ErrNotFound.
	FindByCouponCode(ctx context.Context, code string) (*Promotion, error)
	// UsageCount returns how many settled orders of the customer have used
	// the promotion.
	UsageCount(ctx context.Context, promotionID, customerID uuid.UUID) (int, error)
	// RecordUsage registers a completed use of the promotion by the
	// customer on the given order.
	RecordUsage(ctx context.Context, promotionID, customerID, orderID uuid.UUID) error
}

// Cart is the evaluation snapshot of an order: the slice of order state that
// conditions and actions may depend on.
type Cart struct {
	OrderID     uuid.UUID
	CustomerID  *uuid.UUID
	CouponCodes []string
	Lines       []CartLine
}

// CartLine is one order line in the evaluation snapshot.
type CartLine struct {
	ID        uuid.UUID
	VariantID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// SubTotal returns quantity times unit price summed across lines, before any
// adjustment.
func (c Cart) SubTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// TotalQuantity returns the total unit count across lines.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// Discount is one order-level discount produced by an action. Amount is
// negative.
type Discount struct {
	PromotionID string
	Amount      decimal.Decimal
	Description string
}

// LineDiscount is one line-level discount produced by an action.
type LineDiscount struct {
	LineID      uuid.UUID
	PromotionID string
	Amount      decimal.Decimal
	Description string
}

// Result aggregates the discounts produced by one evaluation pass.
type Result struct {
	OrderDiscounts []Discount
	LineDiscounts  []LineDiscount
}
