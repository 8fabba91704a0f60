package shipping

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/domain/order"
)

var _ order.ShippingEngine = (*Engine)(nil)

// Engine implements order.ShippingEngine over the configured shipping
// methods. The active-method set is cached read-mostly; Invalidate must be
// called whenever a method is created, updated, or deleted.
type Engine struct {
	repo Repository
	reg  *Registry
	lg   *zap.Logger

	mu     sync.RWMutex
	active []*Method
}

// NewEngine creates an engine over the given repository and registry.
func NewEngine(repo Repository, reg *Registry, lg *zap.Logger) *Engine {
	return &Engine{repo: repo, reg: reg, lg: lg}
}

// Invalidate drops the cached active-method set. The next read reloads it
// from the repository.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()
}

func (e *Engine) activeMethods(ctx context.Context) ([]*Method, error) {
	e.mu.RLock()
	cached := e.active
	e.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	methods, err := e.repo.ActiveMethods(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.active = methods
	e.mu.Unlock()
	return methods, nil
}

// EligibleMethods returns a quote for every active method whose checker
// passes for the order.
func (e *Engine) EligibleMethods(ctx context.Context, ord *order.Order) ([]order.ShippingQuote, error) {
	methods, err := e.activeMethods(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load shipping methods")
	}

	view := viewOf(ord)
	quotes := make([]order.ShippingQuote, 0, len(methods))
	for _, m := range methods {
		eligible, err := e.check(m, view)
		if err != nil {
			return nil, errors.Wrapf(err, "method %s", m.Code)
		}
		if !eligible {
			continue
		}
		price, err := e.calculate(m, view)
		if err != nil {
			return nil, errors.Wrapf(err, "method %s", m.Code)
		}
		quotes = append(quotes, order.ShippingQuote{
			MethodID: m.ID,
			Code:     m.Code,
			Name:     m.Name,
			Price:    price,
		})
	}
	return quotes, nil
}

// PriceFor prices the given method for the order. The method must exist and
// be eligible.
func (e *Engine) PriceFor(ctx context.Context, ord *order.Order, methodID uuid.UUID) (decimal.Decimal, error) {
	m, err := e.method(ctx, methodID)
	if err != nil {
		return decimal.Zero, err
	}

	view := viewOf(ord)
	eligible, err := e.check(m, view)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "method %s", m.Code)
	}
	if !eligible {
		return decimal.Zero, order.ErrShippingMethodNotEligible
	}
	return e.calculate(m, view)
}

func (e *Engine) method(ctx context.Context, id uuid.UUID) (*Method, error) {
	methods, err := e.activeMethods(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load shipping methods")
	}
	for _, m := range methods {
		if m.ID == id {
			return m, nil
		}
	}
	// Cache may be stale; fall back to the source of truth.
	m, err := e.repo.Method(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Enabled {
		return nil, ErrNotFound
	}
	return m, nil
}

func (e *Engine) check(m *Method, view OrderView) (bool, error) {
	checker, ok := e.reg.Checker(m.Checker.Code)
	if !ok {
		return false, errors.Errorf("unknown checker %q", m.Checker.Code)
	}
	return checker.Check(view, m.Checker.Args)
}

func (e *Engine) calculate(m *Method, view OrderView) (decimal.Decimal, error) {
	calc, ok := e.reg.Calculator(m.Calculator.Code)
	if !ok {
		return decimal.Zero, errors.Errorf("unknown calculator %q", m.Calculator.Code)
	}
	return calc.Calculate(view, m.Calculator.Args)
}

// viewOf derives the pricing view from the lines rather than the order's
// SubTotal field, which is stale while a recompute is in flight.
func viewOf(ord *order.Order) OrderView {
	view := OrderView{SubTotal: decimal.Zero}
	for _, l := range ord.Lines {
		view.SubTotal = view.SubTotal.Add(l.Total())
		view.TotalQuantity += l.Quantity
	}
	if ord.ShippingAddress != nil {
		view.CountryCode = ord.ShippingAddress.CountryCode
	}
	return view
}
