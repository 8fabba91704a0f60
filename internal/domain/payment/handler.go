package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateResult is a gateway's answer to a payment creation request. The
// returned state decides how the order reacts: Settled settles the order
// immediately, Authorized parks it in PaymentAuthorized, Declined and Error
// leave the order arranging payment.
type CreateResult struct {
	State         State
	TransactionID string
	ErrorMessage  string
}

// SettleResult is a gateway's answer to a settlement request.
type SettleResult struct {
	TransactionID string
}

// RefundResult is a gateway's answer to a refund request.
type RefundResult struct {
	State         RefundState
	TransactionID string
}

// Handler integrates one payment method with its gateway. Implementations
// must be safe for concurrent use.
type Handler interface {
	Code() string
	CreatePayment(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (CreateResult, error)
	SettlePayment(ctx context.Context, p *Payment) (SettleResult, error)
	CreateRefund(ctx context.Context, p *Payment, total decimal.Decimal, reason string) (RefundResult, error)
}

// UnknownMethodError indicates no handler is registered for a method code.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("no payment handler registered for method %q", e.Method)
}

// Registry maps payment method codes to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds (or replaces) a handler.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Code()] = h
}

// Handler returns the handler for a method code.
func (r *Registry) Handler(method string) (Handler, error) {
	h, ok := r.handlers[method]
	if !ok {
		return nil, &UnknownMethodError{Method: method}
	}
	return h, nil
}

// ManualHandler is a gateway-less handler: payments authorize on creation
// and settle on demand. Suitable for development, testing, and offline
// methods like bank transfer.
type ManualHandler struct {
	code string
}

// NewManualHandler creates a ManualHandler with the given method code.
func NewManualHandler(code string) *ManualHandler {
	return &ManualHandler{code: code}
}

// Code implements Handler.
func (h *ManualHandler) Code() string { return h.code }

// CreatePayment authorizes immediately with a synthetic transaction id.
func (h *ManualHandler) CreatePayment(_ context.Context, orderID uuid.UUID, _ decimal.Decimal, _ map[string]string) (CreateResult, error) {
	return CreateResult{
		State:         StateAuthorized,
		TransactionID: h.code + "-" + orderID.String(),
	}, nil
}

// SettlePayment settles unconditionally.
func (h *ManualHandler) SettlePayment(_ context.Context, p *Payment) (SettleResult, error) {
	if p.Method != h.code {
		return SettleResult{}, errors.Errorf("payment %s does not use method %s", p.ID, h.code)
	}
	return SettleResult{TransactionID: p.TransactionID}, nil
}

// CreateRefund settles the refund immediately.
func (h *ManualHandler) CreateRefund(_ context.Context, p *Payment, _ decimal.Decimal, _ string) (RefundResult, error) {
	return RefundResult{
		State:         RefundSettled,
		TransactionID: p.TransactionID,
	}, nil
}
