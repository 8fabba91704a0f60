// Package order implements the order-processing core: the Order aggregate,
// its lifecycle state machine, price calculation under promotions and
// shipping, and the merge of guest carts into customer carts at login.
package order

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is an order lifecycle state.
type State string

const (
	StateAddingItems        State = "AddingItems"
	StateArrangingPayment   State = "ArrangingPayment"
	StatePaymentAuthorized  State = "PaymentAuthorized"
	StatePaymentSettled     State = "PaymentSettled"
	StatePartiallyFulfilled State = "PartiallyFulfilled"
	StateFulfilled          State = "Fulfilled"
	StateCancelled          State = "Cancelled"
)

// AdjustmentType classifies an adjustment's origin.
type AdjustmentType string

const (
	// AdjustmentPromotion is a discount produced by a promotion action.
	AdjustmentPromotion AdjustmentType = "promotion"
	// AdjustmentOther covers manual corrections.
	AdjustmentOther AdjustmentType = "other"
)

// Adjustment is a priced effect attached to an order or a line. Amounts are
// signed: discounts are negative. Adjustments are value objects; on every
// recalculation they are discarded wholesale and regenerated, never patched.
type Adjustment struct {
	Type        AdjustmentType  `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	// SourceID references the producing promotion so causality can be
	// reconstructed for audit.
	SourceID string `json:"sourceId"`
}

// Address is a shipping or billing address. The core treats it as opaque
// beyond presence.
type Address struct {
	FullName    string `json:"fullName"`
	StreetLine1 string `json:"streetLine1"`
	StreetLine2 string `json:"streetLine2,omitempty"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	CountryCode string `json:"countryCode"`
}

// Item is one physical unit within a line: the granularity at which
// fulfillment, cancellation, and refunds operate. The unit price is fixed at
// creation; AdjustedUnitPrice is recomputed by the Calculator.
type Item struct {
	ID                uuid.UUID
	UnitPrice         decimal.Decimal
	AdjustedUnitPrice decimal.Decimal
	Cancelled         bool
	FulfillmentID     *uuid.UUID
	RefundID          *uuid.UUID
}

// Line is the quantity of one product variant within an order. The unit price
// is a snapshot taken when items were first added; it does not float with
// later catalog price changes. Outside an in-progress mutation,
// len(Items) == Quantity always holds.
type Line struct {
	ID          uuid.UUID
	VariantID   uuid.UUID
	Quantity    int
	UnitPrice   decimal.Decimal
	Items       []*Item
	Adjustments []Adjustment
}

// NewLine creates a line for the given variant with the unit price snapshot
// and quantity items.
func NewLine(variantID uuid.UUID, unitPrice decimal.Decimal, quantity int) *Line {
	l := &Line{
		ID:        uuid.New(),
		VariantID: variantID,
		UnitPrice: unitPrice,
	}
	l.SetQuantity(quantity)
	return l
}

// SetQuantity grows or shrinks the line's item list to match the quantity.
// Shrinking removes from the tail, skipping items already consumed by a
// fulfillment or refund.
func (l *Line) SetQuantity(quantity int) {
	for len(l.Items) < quantity {
		l.Items = append(l.Items, &Item{
			ID:                uuid.New(),
			UnitPrice:         l.UnitPrice,
			AdjustedUnitPrice: l.UnitPrice,
		})
	}
	for len(l.Items) > quantity {
		idx := -1
		for i := len(l.Items) - 1; i >= 0; i-- {
			it := l.Items[i]
			if it.FulfillmentID == nil && it.RefundID == nil {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		l.Items = slices.Delete(l.Items, idx, idx+1)
	}
	l.Quantity = len(l.Items)
}

// SubTotal is quantity times the unit price snapshot, before adjustments.
func (l *Line) SubTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// AdjustmentTotal sums the line's adjustments (negative for discounts).
func (l *Line) AdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range l.Adjustments {
		total = total.Add(a.Amount)
	}
	return total
}

// Total is the line sub-total after adjustments.
func (l *Line) Total() decimal.Decimal {
	return l.SubTotal().Add(l.AdjustmentTotal())
}

// ClearAdjustments discards the line's adjustments ahead of a recompute.
func (l *Line) ClearAdjustments() {
	l.Adjustments = nil
}

// ActiveItems returns the line's items that are not cancelled.
func (l *Line) ActiveItems() []*Item {
	out := make([]*Item, 0, len(l.Items))
	for _, it := range l.Items {
		if !it.Cancelled {
			out = append(out, it)
		}
	}
	return out
}

// Order is the aggregate root tracking a customer's cart through to
// settlement. Monetary fields are derived: they are recomputed by the
// Calculator after every mutation and never hand-patched.
type Order struct {
	ID               uuid.UUID
	Code             string
	State            State
	Active           bool
	CustomerID       *uuid.UUID
	Lines            []*Line
	CouponCodes      []string
	ShippingMethodID *uuid.UUID
	ShippingAddress  *Address
	BillingAddress   *Address
	Adjustments      []Adjustment
	SubTotal         decimal.Decimal
	ShippingCost     decimal.Decimal
	Total            decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// New creates an empty active order in the initial lifecycle state, owned by
// the given customer (nil for guest carts).
func New(customerID *uuid.UUID) *Order {
	return &Order{
		ID:           uuid.New(),
		Code:         GenerateCode(),
		State:        StateAddingItems,
		Active:       true,
		CustomerID:   customerID,
		SubTotal:     decimal.Zero,
		ShippingCost: decimal.Zero,
		Total:        decimal.Zero,
		CreatedAt:    time.Now().UTC(),
	}
}

// GenerateCode produces a human-readable order code. Codes are assigned once
// at creation and never change.
func GenerateCode() string {
	id := uuid.New()
	// Hex is unambiguous in support conversations; 12 chars keeps collisions
	// negligible at any realistic order volume.
	return "C" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}

// Line returns the line with the given id, or nil.
func (o *Order) Line(lineID uuid.UUID) *Line {
	for _, l := range o.Lines {
		if l.ID == lineID {
			return l
		}
	}
	return nil
}

// LineWithVariant returns the line holding the given variant, or nil.
func (o *Order) LineWithVariant(variantID uuid.UUID) *Line {
	for _, l := range o.Lines {
		if l.VariantID == variantID {
			return l
		}
	}
	return nil
}

// Item returns the item with the given id and its owning line, or nils.
func (o *Order) Item(itemID uuid.UUID) (*Item, *Line) {
	for _, l := range o.Lines {
		for _, it := range l.Items {
			if it.ID == itemID {
				return it, l
			}
		}
	}
	return nil, nil
}

// Items returns every item across all lines.
func (o *Order) Items() []*Item {
	var out []*Item
	for _, l := range o.Lines {
		out = append(out, l.Items...)
	}
	return out
}

// HasCouponCode reports whether the code is in the applied set.
func (o *Order) HasCouponCode(code string) bool {
	return slices.Contains(o.CouponCodes, code)
}

// ApplyCouponCode adds the code to the applied set. Applying an
// already-present code is a no-op; the set keeps insertion order but the
// order is not significant.
func (o *Order) ApplyCouponCode(code string) {
	if !o.HasCouponCode(code) {
		o.CouponCodes = append(o.CouponCodes, code)
	}
}

// RemoveCouponCode removes the code from the applied set; removing an absent
// code is a no-op.
func (o *Order) RemoveCouponCode(code string) {
	o.CouponCodes = slices.DeleteFunc(o.CouponCodes, func(c string) bool { return c == code })
}

// ClearAdjustments discards order-level and line-level adjustments ahead of a
// full recompute.
func (o *Order) ClearAdjustments() {
	o.Adjustments = nil
	for _, l := range o.Lines {
		l.ClearAdjustments()
	}
}

// AdjustmentTotal sums the order-level adjustments.
func (o *Order) AdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range o.Adjustments {
		total = total.Add(a.Amount)
	}
	return total
}

// AllItemsCancelled reports whether every item of the order is individually
// cancelled. Orders with no items count as fully cancelled.
func (o *Order) AllItemsCancelled() bool {
	for _, l := range o.Lines {
		for _, it := range l.Items {
			if !it.Cancelled {
				return false
			}
		}
	}
	return true
}

// IsTerminal reports whether the order has reached a final state.
func (o *Order) IsTerminal() bool {
	return o.State == StateFulfilled || o.State == StateCancelled
}

// recomputeTotals re-derives the order's monetary invariant:
//
//	SubTotal = Σ line totals after line adjustments
//	Total    = SubTotal + ShippingCost + Σ order-level adjustments
//
// Order-level adjustments are negative for discounts, so the grand total is
// the sub-total plus shipping minus discounts.
func (o *Order) recomputeTotals() {
	sub := decimal.Zero
	for _, l := range o.Lines {
		sub = sub.Add(l.Total())
	}
	o.SubTotal = sub
	o.Total = sub.Add(o.ShippingCost).Add(o.AdjustmentTotal())
}
