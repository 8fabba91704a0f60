// Package shipping quotes and prices shipping methods for orders. A method
// pairs an eligibility checker with a price calculator, both configured by
// code and arguments the way promotion conditions and actions are.
package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no shipping method matches.
var ErrNotFound = errors.New("shipping method not found")

// Args carries the configured parameters of a checker or calculator instance.
type Args map[string]string

// CheckerConfig selects and parameterizes an eligibility checker.
type CheckerConfig struct {
	Code string `json:"code"`
	Args Args   `json:"args,omitempty"`
}

// CalculatorConfig selects and parameterizes a price calculator.
type CalculatorConfig struct {
	Code string `json:"code"`
	Args Args   `json:"args,omitempty"`
}

// Method is a configured shipping method.
type Method struct {
	ID         uuid.UUID
	Code       string
	Name       string
	Enabled    bool
	Checker    CheckerConfig
	Calculator CalculatorConfig
}

// Repository provides shipping method lookup.
type Repository interface {
	ActiveMethods(ctx context.Context) ([]*Method, error)
	Method(ctx context.Context, id uuid.UUID) (*Method, error)
}

// OrderView is the slice of order state eligibility and pricing depend on.
type OrderView struct {
	SubTotal      decimal.Decimal
	TotalQuantity int
	CountryCode   string
}

// Checker decides whether a method is available for an order.
type Checker interface {
	Code() string
	Check(ord OrderView, args Args) (bool, error)
}

// Calculator prices a method for an order.
type Calculator interface {
	Code() string
	Calculate(ord OrderView, args Args) (decimal.Decimal, error)
}

// Registry maps checker and calculator codes to implementations.
type Registry struct {
	checkers    map[string]Checker
	calculators map[string]Calculator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checkers:    make(map[string]Checker),
		calculators: make(map[string]Calculator),
	}
}

// DefaultRegistry returns a registry with the built-in checkers and
// calculators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterChecker(alwaysEligible{})
	r.RegisterChecker(minOrderTotal{})
	r.RegisterCalculator(flatRate{})
	r.RegisterCalculator(freeOverThreshold{})
	return r
}

// RegisterChecker adds (or replaces) a checker implementation.
func (r *Registry) RegisterChecker(c Checker) { r.checkers[c.Code()] = c }

// RegisterCalculator adds (or replaces) a calculator implementation.
func (r *Registry) RegisterCalculator(c Calculator) { r.calculators[c.Code()] = c }

// Checker looks up a checker by code.
func (r *Registry) Checker(code string) (Checker, bool) {
	c, ok := r.checkers[code]
	return c, ok
}

// Calculator looks up a calculator by code.
func (r *Registry) Calculator(code string) (Calculator, bool) {
	c, ok := r.calculators[code]
	return c, ok
}

// alwaysEligible passes for every order.
type alwaysEligible struct{}

func (alwaysEligible) Code() string { return "always" }

func (alwaysEligible) Check(OrderView, Args) (bool, error) { return true, nil }

// minOrderTotal passes when the order sub-total is at least args["total"].
type minOrderTotal struct{}

func (minOrderTotal) Code() string { return "min_order_total" }

func (minOrderTotal) Check(ord OrderView, args Args) (bool, error) {
	raw, ok := args["total"]
	if !ok {
		return false, errors.New("min_order_total: missing total argument")
	}
	min, err := decimal.NewFromString(raw)
	if err != nil {
		return false, errors.Wrap(err, "min_order_total: parse total")
	}
	return ord.SubTotal.GreaterThanOrEqual(min), nil
}

// flatRate charges args["rate"] regardless of order contents.
type flatRate struct{}

func (flatRate) Code() string { return "flat_rate" }

func (flatRate) Calculate(_ OrderView, args Args) (decimal.Decimal, error) {
	raw, ok := args["rate"]
	if !ok {
		return decimal.Zero, errors.New("flat_rate: missing rate argument")
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "flat_rate: parse rate")
	}
	return rate, nil
}

// freeOverThreshold charges args["rate"] below args["threshold"] and nothing
// at or above it.
type freeOverThreshold struct{}

func (freeOverThreshold) Code() string { return "free_over_threshold" }

func (freeOverThreshold) Calculate(ord OrderView, args Args) (decimal.Decimal, error) {
	rawRate, ok := args["rate"]
	if !ok {
		return decimal.Zero, errors.New("free_over_threshold: missing rate argument")
	}
	rate, err := decimal.NewFromString(rawRate)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "free_over_threshold: parse rate")
	}
	rawThreshold, ok := args["threshold"]
	if !ok {
		return decimal.Zero, errors.New("free_over_threshold: missing threshold argument")
	}
	threshold, err := decimal.NewFromString(rawThreshold)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "free_over_threshold: parse threshold")
	}
	if ord.SubTotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero, nil
	}
	return rate, nil
}
