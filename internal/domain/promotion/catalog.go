package promotion

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Condition is a named, parameterized predicate over the cart snapshot.
type Condition interface {
	Code() string
	// Priority is the condition's intrinsic weight in the promotion's
	// priority score.
	Priority() int
	Check(cart Cart, args Args) (bool, error)
}

// Action produces discounts when its promotion's conditions are satisfied.
type Action interface {
	Code() string
	Priority() int
	Apply(cart Cart, args Args) (Result, error)
}

// Registry maps condition and action codes to implementations. The built-in
// catalog ships via DefaultRegistry; deployments register additional entries
// before wiring the evaluator.
type Registry struct {
	conditions map[string]Condition
	actions    map[string]Action
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conditions: make(map[string]Condition),
		actions:    make(map[string]Action),
	}
}

// DefaultRegistry returns a registry pre-populated with the built-in catalog.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterCondition(minimumOrderAmount{})
	r.RegisterCondition(minimumQuantity{})
	r.RegisterCondition(containsVariants{})
	r.RegisterCondition(customerGroup{})
	r.RegisterAction(orderPercentageDiscount{})
	r.RegisterAction(orderFixedDiscount{})
	r.RegisterAction(linePercentageDiscount{})
	r.RegisterAction(freeCheapestItem{})
	return r
}

// RegisterCondition adds (or replaces) a condition implementation.
func (r *Registry) RegisterCondition(c Condition) {
	r.conditions[c.Code()] = c
}

// RegisterAction adds (or replaces) an action implementation.
func (r *Registry) RegisterAction(a Action) {
	r.actions[a.Code()] = a
}

// Condition looks up a condition by code.
func (r *Registry) Condition(code string) (Condition, bool) {
	c, ok := r.conditions[code]
	return c, ok
}

// Action looks up an action by code.
func (r *Registry) Action(code string) (Action, bool) {
	a, ok := r.actions[code]
	return a, ok
}

var hundred = decimal.NewFromInt(100)

// minimumOrderAmount passes when the cart sub-total is at least args["amount"].
type minimumOrderAmount struct{}

func (minimumOrderAmount) Code() string  { return "minimum_order_amount" }
func (minimumOrderAmount) Priority() int { return 0 }

func (minimumOrderAmount) Check(cart Cart, args Args) (bool, error) {
	raw, ok := args["amount"]
	if !ok {
		return false, errors.New("minimum_order_amount: missing amount argument")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return false, errors.Wrap(err, "minimum_order_amount: parse amount")
	}
	return cart.SubTotal().GreaterThanOrEqual(amount), nil
}

// minimumQuantity passes when the cart holds at least args["quantity"] units.
type minimumQuantity struct{}

func (minimumQuantity) Code() string  { return "minimum_quantity" }
func (minimumQuantity) Priority() int { return 0 }

func (minimumQuantity) Check(cart Cart, args Args) (bool, error) {
	raw, ok := args["quantity"]
	if !ok {
		return false, errors.New("minimum_quantity: missing quantity argument")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return false, errors.Wrap(err, "minimum_quantity: parse quantity")
	}
	return cart.TotalQuantity() >= n, nil
}

// containsVariants passes when the cart contains any of the configured
// variant ids (args["variantIds"], comma-separated).
type containsVariants struct{}

func (containsVariants) Code() string  { return "contains_variants" }
func (containsVariants) Priority() int { return 0 }

func (containsVariants) Check(cart Cart, args Args) (bool, error) {
	ids := splitIDs(args["variantIds"])
	if len(ids) == 0 {
		return false, errors.New("contains_variants: missing variantIds argument")
	}
	for _, l := range cart.Lines {
		if _, ok := ids[l.VariantID.String()]; ok {
			return true, nil
		}
	}
	return false, nil
}

// customerGroup gates a promotion on the customer's group. Only the
// registered/guest split exists today; richer segmentation slots in here
// once customer groups are modeled.
type customerGroup struct{}

func (customerGroup) Code() string  { return "customer_group" }
func (customerGroup) Priority() int { return 0 }

func (customerGroup) Check(cart Cart, args Args) (bool, error) {
	group, ok := args["group"]
	if !ok {
		return false, errors.New("customer_group: missing group argument")
	}
	switch group {
	case "registered":
		return cart.CustomerID != nil, nil
	case "guest":
		return cart.CustomerID == nil, nil
	default:
		return false, errors.Errorf("customer_group: unknown group %q", group)
	}
}

// orderPercentageDiscount discounts the cart sub-total by args["discount"]
// percent.
type orderPercentageDiscount struct{}

func (orderPercentageDiscount) Code() string { return "order_percentage_discount" }

// Order-level actions carry a higher weight so they evaluate after
// line-level ones.
func (orderPercentageDiscount) Priority() int { return 10 }

func (orderPercentageDiscount) Apply(cart Cart, args Args) (Result, error) {
	pct := args.Decimal("discount", decimal.Zero)
	amount := cart.SubTotal().Mul(pct).Div(hundred).Round(2)
	if amount.IsZero() {
		return Result{}, nil
	}
	return Result{OrderDiscounts: []Discount{{
		Amount:      amount.Neg(),
		Description: pct.String() + "% off order",
	}}}, nil
}

// orderFixedDiscount discounts the order by args["amount"], capped at the
// cart sub-total so the total never goes negative.
type orderFixedDiscount struct{}

func (orderFixedDiscount) Code() string  { return "order_fixed_discount" }
func (orderFixedDiscount) Priority() int { return 10 }

func (orderFixedDiscount) Apply(cart Cart, args Args) (Result, error) {
	amount := args.Decimal("amount", decimal.Zero)
	amount = decimal.Min(amount, cart.SubTotal())
	if amount.IsZero() {
		return Result{}, nil
	}
	return Result{OrderDiscounts: []Discount{{
		Amount:      amount.Round(2).Neg(),
		Description: amount.Round(2).String() + " off order",
	}}}, nil
}

// linePercentageDiscount discounts matching lines by args["discount"]
// percent. With args["variantIds"] set only those variants match; otherwise
// every line does.
type linePercentageDiscount struct{}

func (linePercentageDiscount) Code() string  { return "line_percentage_discount" }
func (linePercentageDiscount) Priority() int { return 0 }

func (linePercentageDiscount) Apply(cart Cart, args Args) (Result, error) {
	pct := args.Decimal("discount", decimal.Zero)
	ids := splitIDs(args["variantIds"])

	var out Result
	for _, l := range cart.Lines {
		if len(ids) > 0 {
			if _, ok := ids[l.VariantID.String()]; !ok {
				continue
			}
		}
		lineSub := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		amount := lineSub.Mul(pct).Div(hundred).Round(2)
		if amount.IsZero() {
			continue
		}
		out.LineDiscounts = append(out.LineDiscounts, LineDiscount{
			LineID:      l.ID,
			Amount:      amount.Neg(),
			Description: pct.String() + "% off",
		})
	}
	return out, nil
}

// freeCheapestItem discounts the order by the lowest unit price in the cart.
type freeCheapestItem struct{}

func (freeCheapestItem) Code() string  { return "free_cheapest_item" }
func (freeCheapestItem) Priority() int { return 10 }

func (freeCheapestItem) Apply(cart Cart, _ Args) (Result, error) {
	if len(cart.Lines) == 0 {
		return Result{}, nil
	}
	lowest := cart.Lines[0].UnitPrice
	for _, l := range cart.Lines[1:] {
		if l.UnitPrice.LessThan(lowest) {
			lowest = l.UnitPrice
		}
	}
	if lowest.IsZero() {
		return Result{}, nil
	}
	return Result{OrderDiscounts: []Discount{{
		Amount:      lowest.Round(2).Neg(),
		Description: "cheapest item free",
	}}}, nil
}

func splitIDs(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out[part] = struct{}{}
		}
	}
	return out
}
