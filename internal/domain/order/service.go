package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/domain/payment"
	"github.com/ordwell/ordercore/internal/domain/promotion"
)

// Deps bundles the service's collaborators.
type Deps struct {
	Orders        Repository
	Fulfillments  FulfillmentRepository
	Tx            TxRunner
	Variants      VariantProvider
	Promotions    promotion.Repository
	Payments      payment.Repository
	PayHandlers   *payment.Registry
	Shipping      ShippingEngine
	Stock         StockAllocator
	Calculator    *Calculator
	Machine       *StateMachine
	PayMachine    *payment.StateMachine
	RefundMachine *payment.RefundStateMachine
	Merger        *Merger
	Logger        *zap.Logger
}

// Service owns every order mutation. Each operation loads the aggregate,
// mutates it, recomputes derived prices, and persists, all inside one unit
// of work. A failure anywhere leaves the previously persisted order
// untouched.
type Service struct {
	orders        Repository
	fulfillments  FulfillmentRepository
	tx            TxRunner
	variants      VariantProvider
	promotions    promotion.Repository
	payments      payment.Repository
	payHandlers   *payment.Registry
	shipping      ShippingEngine
	stock         StockAllocator
	calculator    *Calculator
	machine       *StateMachine
	payMachine    *payment.StateMachine
	refundMachine *payment.RefundStateMachine
	merger        *Merger
	lg            *zap.Logger
	now           func() time.Time
}

// NewService creates the order service.
func NewService(d Deps) *Service {
	return &Service{
		orders:        d.Orders,
		fulfillments:  d.Fulfillments,
		tx:            d.Tx,
		variants:      d.Variants,
		promotions:    d.Promotions,
		payments:      d.Payments,
		payHandlers:   d.PayHandlers,
		shipping:      d.Shipping,
		stock:         d.Stock,
		calculator:    d.Calculator,
		machine:       d.Machine,
		payMachine:    d.PayMachine,
		refundMachine: d.RefundMachine,
		merger:        d.Merger,
		lg:            d.Logger,
		now:           time.Now,
	}
}

// CreateOrder creates an empty active order for the customer (nil for a
// guest session).
func (s *Service) CreateOrder(ctx context.Context, customerID *uuid.UUID) (*Order, error) {
	ord := New(customerID)
	if err := s.orders.Create(ctx, ord); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.lg.Info("order created", zap.String("code", ord.Code))
	return ord, nil
}

// Order loads an order by id.
func (s *Service) Order(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.load(ctx, orderID)
}

// AddItem adds quantity units of a variant to the order, snapshotting the
// variant's current price if the order has no line for it yet.
func (s *Service) AddItem(ctx context.Context, orderID, variantID uuid.UUID, quantity int) (*Order, error) {
	if quantity <= 0 {
		return nil, ErrQuantityInvalid
	}
	return s.mutate(ctx, orderID, func(ctx context.Context, ord *Order) error {
		if err := s.requireState(ord, "add item", StateAddingItems); err != nil {
			return err
		}
		if line := ord.LineWithVariant(variantID); line != nil {
			line.SetQuantity(line.Quantity + quantity)
			return nil
		}
		variant, err := s.variants.Variant(ctx, variantID)
		if err != nil {
			return err
		}
		ord.Lines = append(ord.Lines, NewLine(variant.ID, variant.Price, quantity))
		return nil
	})
}

// AdjustLine sets a line's quantity. Quantity zero removes the line.
func (s *Service) AdjustLine(ctx context.Context, orderID, lineID uuid.UUID, quantity int) (*Order, error) {
	if quantity < 0 {
		return nil, ErrQuantityInvalid
	}
	return s.mutate(ctx, orderID, func(_ context.Context, ord *Order) error {
		if err := s.requireState(ord, "adjust line", StateAddingItems); err != nil {
			return err
		}
		line := ord.Line(lineID)
		if line == nil {
			return &NotFoundError{Entity: "order line", ID: lineID.String()}
		}
		if quantity == 0 {
			s.removeLine(ord, lineID)
			return nil
		}
		line.SetQuantity(quantity)
		return nil
	})
}

// RemoveLine removes a line from the order.
func (s *Service) RemoveLine(ctx context.Context, orderID, lineID uuid.UUID) (*Order, error) {
	return s.mutate(ctx, orderID, func(_ context.Context, ord *Order) error {
		if err := s.requireState(ord, "remove line", StateAddingItems); err != nil {
			return err
		}
		if ord.Line(lineID) == nil {
			return &NotFoundError{Entity: "order line", ID: lineID.String()}
		}
		s.removeLine(ord, lineID)
		return nil
	})
}

// RemoveAllLines empties the order.
func (s *Service) RemoveAllLines(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.mutate(ctx, orderID, func(_ context.Context, ord *Order) error {
		if err := s.requireState(ord, "remove all lines", StateAddingItems); err != nil {
			return err
		}
		ord.Lines = nil
		return nil
	})
}

// ApplyCouponCode validates the code (existence, validity window,
// per-customer usage limit) and adds it to the order's applied set. Applying
// an already-applied code is a no-op.
func (s *Service) ApplyCouponCode(ctx context.Context, orderID uuid.UUID, code string) (*Order, error) {
	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, orderID)
		if err != nil {
			return err
		}
		if ord.HasCouponCode(code) {
			out = ord
			return nil
		}

		promo, err := s.promotions.FindByCouponCode(ctx, code)
		if err != nil {
			if errors.Is(err, promotion.ErrNotFound) {
				return ErrCouponNotFound
			}
			return errors.Wrap(err, "find coupon")
		}
		if !promo.WindowContains(s.now()) {
			return ErrCouponExpired
		}
		if promo.PerCustomerLimit > 0 && ord.CustomerID != nil {
			used, err := s.promotions.UsageCount(ctx, promo.ID, *ord.CustomerID)
			if err != nil {
				return errors.Wrap(err, "count coupon usage")
			}
			if used >= promo.PerCustomerLimit {
				return ErrCouponLimitReached
			}
		}

		ord.ApplyCouponCode(code)
		if err := s.recomputeAndSave(ctx, ord); err != nil {
			return err
		}
		out = ord
		return nil
	})
	return out, err
}

// RemoveCouponCode removes the code from the order; removing a code that is
// not applied is a no-op.
func (s *Service) RemoveCouponCode(ctx context.Context, orderID uuid.UUID, code string) (*Order, error) {
	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, orderID)
		if err != nil {
			return err
		}
		if !ord.HasCouponCode(code) {
			out = ord
			return nil
		}
		ord.RemoveCouponCode(code)
		if err := s.recomputeAndSave(ctx, ord); err != nil {
			return err
		}
		out = ord
		return nil
	})
	return out, err
}

// SetShippingAddress sets the order's shipping address.
func (s *Service) SetShippingAddress(ctx context.Context, orderID uuid.UUID, addr Address) (*Order, error) {
	return s.mutate(ctx, orderID, func(_ context.Context, ord *Order) error {
		ord.ShippingAddress = &addr
		return nil
	})
}

// SetBillingAddress sets the order's billing address.
func (s *Service) SetBillingAddress(ctx context.Context, orderID uuid.UUID, addr Address) (*Order, error) {
	return s.mutate(ctx, orderID, func(_ context.Context, ord *Order) error {
		ord.BillingAddress = &addr
		return nil
	})
}

// EligibleShippingMethods quotes the shipping methods available for the
// order.
func (s *Service) EligibleShippingMethods(ctx context.Context, orderID uuid.UUID) ([]ShippingQuote, error) {
	ord, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.shipping.EligibleMethods(ctx, ord)
}

// SetShippingMethod selects a shipping method for the order. The method must
// currently be eligible.
func (s *Service) SetShippingMethod(ctx context.Context, orderID, methodID uuid.UUID) (*Order, error) {
	return s.mutate(ctx, orderID, func(ctx context.Context, ord *Order) error {
		quotes, err := s.shipping.EligibleMethods(ctx, ord)
		if err != nil {
			return errors.Wrap(err, "quote shipping methods")
		}
		for _, q := range quotes {
			if q.MethodID == methodID {
				ord.ShippingMethodID = &methodID
				return nil
			}
		}
		return ErrShippingMethodNotEligible
	})
}

// TransitionOrderState requests a lifecycle transition. Cancellation is
// gated: beyond checkout, an order may only enter Cancelled once all of its
// items are individually cancelled.
func (s *Service) TransitionOrderState(ctx context.Context, orderID uuid.UUID, target State) (*Order, error) {
	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, ord, target); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, ord); err != nil {
			return errors.Wrap(err, "save order")
		}
		out = ord
		return nil
	})
	return out, err
}

// transition runs the state machine plus the service-level gating and
// bookkeeping that surrounds it. Caller persists.
func (s *Service) transition(ctx context.Context, ord *Order, target State) error {
	if target == StateCancelled &&
		ord.State != StateAddingItems && ord.State != StateArrangingPayment &&
		!ord.AllItemsCancelled() {
		return &IllegalOperationError{Op: "cancel order with uncancelled items", OrderID: ord.Code, State: ord.State}
	}
	if target == StatePaymentSettled {
		covered, err := s.totalCovered(ctx, ord)
		if err != nil {
			return err
		}
		if !covered {
			return ErrPaymentNotCovering
		}
	}

	if err := s.machine.Transition(ctx, ord, target); err != nil {
		return err
	}

	if target == StatePaymentSettled {
		if err := s.recordCouponUsages(ctx, ord); err != nil {
			return err
		}
	}
	return nil
}

// AddPayment creates a payment for the order's full outstanding total via
// the method's handler and reacts to the resulting payment state.
func (s *Service) AddPayment(ctx context.Context, orderID uuid.UUID, method string, metadata map[string]string) (*Order, error) {
	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.requireState(ord, "add payment", StateArrangingPayment); err != nil {
			return err
		}

		handler, err := s.payHandlers.Handler(method)
		if err != nil {
			return err
		}
		res, err := handler.CreatePayment(ctx, ord.ID, ord.Total, metadata)
		if err != nil {
			return errors.Wrap(err, "create payment")
		}

		p := &payment.Payment{
			ID:        uuid.New(),
			OrderID:   ord.ID,
			State:     payment.StateCreated,
			Amount:    ord.Total,
			Method:    method,
			Metadata:  metadata,
			CreatedAt: s.now().UTC(),
		}
		if err := s.payments.CreatePayment(ctx, p); err != nil {
			return errors.Wrap(err, "persist payment")
		}

		p.TransactionID = res.TransactionID
		p.ErrorMessage = res.ErrorMessage
		if res.State != payment.StateCreated {
			if err := s.payMachine.Transition(ctx, p, res.State); err != nil {
				return err
			}
		}
		if err := s.payments.UpdatePayment(ctx, p); err != nil {
			return errors.Wrap(err, "update payment")
		}

		switch p.State {
		case payment.StateSettled:
			if err := s.transition(ctx, ord, StatePaymentSettled); err != nil {
				return err
			}
		case payment.StateAuthorized:
			if err := s.transition(ctx, ord, StatePaymentAuthorized); err != nil {
				return err
			}
		}

		if err := s.orders.Save(ctx, ord); err != nil {
			return errors.Wrap(err, "save order")
		}
		out = ord
		return nil
	})
	return out, err
}

// SettlePayment settles a payment with its gateway and, when the order's
// total is fully covered, settles the order.
func (s *Service) SettlePayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	var out *payment.Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.Payment(ctx, paymentID)
		if err != nil {
			return err
		}
		ord, err := s.load(ctx, p.OrderID)
		if err != nil {
			return err
		}

		handler, err := s.payHandlers.Handler(p.Method)
		if err != nil {
			return err
		}
		res, err := handler.SettlePayment(ctx, p)
		if err != nil {
			return errors.Wrap(err, "settle payment")
		}
		if res.TransactionID != "" {
			p.TransactionID = res.TransactionID
		}

		if err := s.payMachine.Transition(ctx, p, payment.StateSettled); err != nil {
			return err
		}
		if err := s.payments.UpdatePayment(ctx, p); err != nil {
			return errors.Wrap(err, "update payment")
		}

		if ord.State == StateArrangingPayment || ord.State == StatePaymentAuthorized {
			switch err := s.transition(ctx, ord, StatePaymentSettled); {
			case errors.Is(err, ErrPaymentNotCovering):
				// Partial coverage: the order keeps waiting for the rest.
			case err != nil:
				return err
			default:
				if err := s.orders.Save(ctx, ord); err != nil {
					return errors.Wrap(err, "save order")
				}
			}
		}
		out = p
		return nil
	})
	return out, err
}

// FulfillmentInput selects the items one shipment covers.
type FulfillmentInput struct {
	OrderID      uuid.UUID
	ItemIDs      []uuid.UUID
	Method       string
	TrackingCode string
}

// CreateFulfillment records a shipment for the given items and advances the
// order to PartiallyFulfilled or Fulfilled.
func (s *Service) CreateFulfillment(ctx context.Context, input FulfillmentInput) (*Fulfillment, error) {
	var out *Fulfillment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if ord.State != StatePaymentSettled && ord.State != StatePartiallyFulfilled {
			return &IllegalOperationError{Op: "create fulfillment", OrderID: ord.Code, State: ord.State}
		}
		if len(input.ItemIDs) == 0 {
			return ErrNothingToFulfill
		}

		f := &Fulfillment{
			ID:           uuid.New(),
			OrderID:      ord.ID,
			Method:       input.Method,
			TrackingCode: input.TrackingCode,
			CreatedAt:    s.now().UTC(),
		}
		for _, itemID := range input.ItemIDs {
			item, _ := ord.Item(itemID)
			if item == nil {
				return &NotFoundError{Entity: "order item", ID: itemID.String()}
			}
			if item.Cancelled {
				return &UserInputError{Msg: "cannot fulfill cancelled item " + itemID.String()}
			}
			if item.FulfillmentID != nil {
				return &UserInputError{Msg: "item " + itemID.String() + " is already fulfilled"}
			}
			item.FulfillmentID = &f.ID
		}
		if err := s.fulfillments.CreateFulfillment(ctx, f); err != nil {
			return errors.Wrap(err, "persist fulfillment")
		}

		target := StatePartiallyFulfilled
		if s.allItemsFulfilled(ord) {
			target = StateFulfilled
		}
		if ord.State != target {
			if err := s.transition(ctx, ord, target); err != nil {
				return err
			}
		}
		if err := s.orders.Save(ctx, ord); err != nil {
			return errors.Wrap(err, "save order")
		}
		out = f
		return nil
	})
	return out, err
}

// CancelInput selects what to cancel. ItemIDs is ignored for orders still in
// checkout, which cancel wholesale.
type CancelInput struct {
	OrderID uuid.UUID
	ItemIDs []uuid.UUID
	Reason  string
}

// CancelOrder cancels items (with compensating stock movements once stock
// has been allocated) and moves the order to Cancelled when nothing active
// remains. Orders still in checkout cancel trivially.
func (s *Service) CancelOrder(ctx context.Context, input CancelInput) (*Order, error) {
	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if ord.IsTerminal() {
			return &IllegalOperationError{Op: "cancel order", OrderID: ord.Code, State: ord.State}
		}

		if ord.State == StateAddingItems || ord.State == StateArrangingPayment {
			// Stock was never allocated; no compensation needed.
			for _, it := range ord.Items() {
				it.Cancelled = true
			}
			if err := s.transition(ctx, ord, StateCancelled); err != nil {
				return err
			}
		} else {
			cancelled, err := s.cancelItems(ctx, ord, input.ItemIDs)
			if err != nil {
				return err
			}
			if err := s.stock.CreateCancellationsForItems(ctx, ord, cancelled); err != nil {
				return err
			}
			if ord.AllItemsCancelled() {
				if err := s.transition(ctx, ord, StateCancelled); err != nil {
					return err
				}
			}
		}

		if err := s.orders.Save(ctx, ord); err != nil {
			return errors.Wrap(err, "save order")
		}
		out = ord
		return nil
	})
	return out, err
}

// cancelItems marks the selected items cancelled, skipping ones already
// cancelled. Selecting nothing cancellable is a user error.
func (s *Service) cancelItems(_ context.Context, ord *Order, itemIDs []uuid.UUID) ([]*Item, error) {
	var cancelled []*Item
	for _, itemID := range itemIDs {
		item, _ := ord.Item(itemID)
		if item == nil {
			return nil, &NotFoundError{Entity: "order item", ID: itemID.String()}
		}
		if item.Cancelled {
			continue
		}
		item.Cancelled = true
		cancelled = append(cancelled, item)
	}
	if len(cancelled) == 0 {
		return nil, ErrNothingToCancel
	}
	return cancelled, nil
}

// RefundInput selects what a refund covers.
type RefundInput struct {
	OrderID    uuid.UUID
	PaymentID  uuid.UUID
	ItemIDs    []uuid.UUID
	Shipping   decimal.Decimal
	Adjustment decimal.Decimal
	Reason     string
}

// RefundOrder creates a refund against a settled payment for the selected
// items plus shipping and manual adjustment amounts.
func (s *Service) RefundOrder(ctx context.Context, input RefundInput) (*payment.Refund, error) {
	var out *payment.Refund
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, input.OrderID)
		if err != nil {
			return err
		}
		p, err := s.payments.Payment(ctx, input.PaymentID)
		if err != nil {
			return err
		}
		if p.OrderID != ord.ID {
			return &NotFoundError{Entity: "payment", ID: input.PaymentID.String()}
		}
		if p.State != payment.StateSettled {
			return &UserInputError{Msg: "payment is not settled"}
		}

		itemsAmount := decimal.Zero
		items := make([]*Item, 0, len(input.ItemIDs))
		for _, itemID := range input.ItemIDs {
			item, _ := ord.Item(itemID)
			if item == nil {
				return &NotFoundError{Entity: "order item", ID: itemID.String()}
			}
			if item.Cancelled {
				return &UserInputError{Msg: "cannot refund cancelled item " + itemID.String()}
			}
			if item.RefundID != nil {
				return &UserInputError{Msg: "item " + itemID.String() + " is already refunded"}
			}
			items = append(items, item)
			itemsAmount = itemsAmount.Add(item.AdjustedUnitPrice)
		}

		total := itemsAmount.Add(input.Shipping).Add(input.Adjustment)
		if !total.IsPositive() {
			return ErrNothingToRefund
		}

		handler, err := s.payHandlers.Handler(p.Method)
		if err != nil {
			return err
		}
		res, err := handler.CreateRefund(ctx, p, total, input.Reason)
		if err != nil {
			return errors.Wrap(err, "create refund")
		}

		r := &payment.Refund{
			ID:             uuid.New(),
			PaymentID:      p.ID,
			State:          payment.RefundPending,
			ItemsAmount:    itemsAmount,
			ShippingAmount: input.Shipping,
			Adjustment:     input.Adjustment,
			Total:          total,
			TransactionID:  res.TransactionID,
			Reason:         input.Reason,
			ItemIDs:        input.ItemIDs,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.payments.CreateRefund(ctx, r); err != nil {
			return errors.Wrap(err, "persist refund")
		}
		if res.State == payment.RefundSettled {
			if err := s.refundMachine.Transition(ctx, r, payment.RefundSettled); err != nil {
				return err
			}
			if err := s.payments.UpdateRefund(ctx, r); err != nil {
				return errors.Wrap(err, "update refund")
			}
		}

		for _, item := range items {
			item.RefundID = &r.ID
		}
		if err := s.orders.Save(ctx, ord); err != nil {
			return errors.Wrap(err, "save order")
		}
		out = r
		return nil
	})
	return out, err
}

// SettleRefund marks a pending refund settled.
func (s *Service) SettleRefund(ctx context.Context, refundID uuid.UUID) (*payment.Refund, error) {
	var out *payment.Refund
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		r, err := s.payments.Refund(ctx, refundID)
		if err != nil {
			return err
		}
		if err := s.refundMachine.Transition(ctx, r, payment.RefundSettled); err != nil {
			return err
		}
		if err := s.payments.UpdateRefund(ctx, r); err != nil {
			return errors.Wrap(err, "update refund")
		}
		out = r
		return nil
	})
	return out, err
}

// MergeOrdersOnLogin reconciles the session's guest order with the
// customer's existing active order when the session authenticates. The whole
// merge runs in one unit of work; a failed line insertion rolls everything
// back.
func (s *Service) MergeOrdersOnLogin(ctx context.Context, customerID, guestOrderID uuid.UUID) (*Order, error) {
	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		guest, err := s.load(ctx, guestOrderID)
		if err != nil {
			return err
		}
		existing, err := s.orders.ActiveByCustomer(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "load customer order")
		}
		if existing != nil && existing.ID == guest.ID {
			out = guest
			return nil
		}

		res := s.merger.Merge(guest, existing)
		if res.Order == nil {
			return &NotFoundError{Entity: "order", ID: guestOrderID.String()}
		}
		if res.Order.CustomerID == nil {
			res.Order.CustomerID = &customerID
		}

		if res.OrderToDelete != nil {
			if err := s.orders.Delete(ctx, res.OrderToDelete.ID); err != nil {
				return errors.Wrap(err, "delete merged order")
			}
		}
		if err := s.recomputeAndSave(ctx, res.Order); err != nil {
			return err
		}

		s.lg.Info("orders merged on login",
			zap.String("surviving", res.Order.Code),
			zap.Int("insertedLines", len(res.LinesToInsert)),
		)
		out = res.Order
		return nil
	})
	return out, err
}

func (s *Service) load(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	ord, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, &NotFoundError{Entity: "order", ID: orderID.String()}
	}
	return ord, nil
}

// mutate is the shared skeleton of cart mutations: load, mutate, recompute,
// save, all in one unit of work.
func (s *Service) mutate(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, ord *Order) error) (*Order, error) {
	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ord, err := s.load(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(ctx, ord); err != nil {
			return err
		}
		if err := s.recomputeAndSave(ctx, ord); err != nil {
			return err
		}
		out = ord
		return nil
	})
	return out, err
}

func (s *Service) recomputeAndSave(ctx context.Context, ord *Order) error {
	if _, err := s.calculator.ApplyPriceAdjustments(ctx, ord); err != nil {
		return err
	}
	if err := s.orders.Save(ctx, ord); err != nil {
		return errors.Wrap(err, "save order")
	}
	return nil
}

func (s *Service) requireState(ord *Order, op string, want State) error {
	if ord.State != want {
		return &IllegalOperationError{Op: op, OrderID: ord.Code, State: ord.State}
	}
	return nil
}

func (s *Service) removeLine(ord *Order, lineID uuid.UUID) {
	lines := ord.Lines[:0]
	for _, l := range ord.Lines {
		if l.ID != lineID {
			lines = append(lines, l)
		}
	}
	ord.Lines = lines
}

// totalCovered reports whether the settled payments reach the order total.
func (s *Service) totalCovered(ctx context.Context, ord *Order) (bool, error) {
	payments, err := s.payments.PaymentsForOrder(ctx, ord.ID)
	if err != nil {
		return false, errors.Wrap(err, "load payments")
	}
	settled := decimal.Zero
	for _, p := range payments {
		if p.State == payment.StateSettled {
			settled = settled.Add(p.Amount)
		}
	}
	return settled.GreaterThanOrEqual(ord.Total), nil
}

// recordCouponUsages registers the order's applied coupon promotions against
// the customer, so per-customer limits count settled orders.
func (s *Service) recordCouponUsages(ctx context.Context, ord *Order) error {
	if ord.CustomerID == nil {
		return nil
	}
	for _, code := range ord.CouponCodes {
		promo, err := s.promotions.FindByCouponCode(ctx, code)
		if err != nil {
			if errors.Is(err, promotion.ErrNotFound) {
				continue
			}
			return errors.Wrap(err, "find coupon promotion")
		}
		if err := s.promotions.RecordUsage(ctx, promo.ID, *ord.CustomerID, ord.ID); err != nil {
			return errors.Wrap(err, "record coupon usage")
		}
	}
	return nil
}

// allItemsFulfilled reports whether every non-cancelled item has been
// consumed by a fulfillment.
func (s *Service) allItemsFulfilled(ord *Order) bool {
	for _, l := range ord.Lines {
		for _, it := range l.Items {
			if it.Cancelled {
				continue
			}
			if it.FulfillmentID == nil {
				return false
			}
		}
	}
	return true
}
