// Package payment holds the Payment and Refund entities, their state
// machines, and the payment-method handler contract. Gateway integration
// lives behind the Handler interface; this package only drives states and
// publishes transition events.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ordwell/ordercore/internal/events"
	"github.com/ordwell/ordercore/internal/fsm"
)

// Sentinel lookup errors.
var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrRefundNotFound  = errors.New("refund not found")
)

// State is a payment lifecycle state.
type State string

const (
	StateCreated    State = "Created"
	StateAuthorized State = "Authorized"
	StateSettled    State = "Settled"
	StateDeclined   State = "Declined"
	StateError      State = "Error"
	StateCancelled  State = "Cancelled"
)

// Payment is one settlement attempt against an order.
type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	State         State
	Amount        decimal.Decimal
	Method        string
	TransactionID string
	// ErrorMessage is set only when the payment is in the Error state.
	ErrorMessage string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository persists payments and refunds.
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	Payment(ctx context.Context, id uuid.UUID) (*Payment, error)
	PaymentsForOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)
	CreateRefund(ctx context.Context, r *Refund) error
	UpdateRefund(ctx context.Context, r *Refund) error
	Refund(ctx context.Context, id uuid.UUID) (*Refund, error)
}

// TransitionEvent is published after a payment changes state. Consumers
// (history logging, fulfillment eligibility) are outside the core.
type TransitionEvent struct {
	PaymentID string
	OrderID   string
	From      State
	To        State
	Amount    decimal.Decimal
}

// EventName implements events.Event.
func (TransitionEvent) EventName() string { return "payment.state_transition" }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e TransitionEvent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("paymentId", e.PaymentID)
	enc.AddString("orderId", e.OrderID)
	enc.AddString("from", string(e.From))
	enc.AddString("to", string(e.To))
	enc.AddString("amount", e.Amount.String())
	return nil
}

// StateMachine governs payment lifecycle transitions.
type StateMachine struct {
	machine *fsm.Machine[State]
	sink    events.Sink
	lg      *zap.Logger
}

// NewStateMachine creates the payment state machine.
func NewStateMachine(sink events.Sink, lg *zap.Logger) *StateMachine {
	return &StateMachine{
		machine: fsm.New(fsm.Config[State]{
			Name:    "payment",
			Initial: StateCreated,
			Transitions: map[State][]State{
				StateCreated:    {StateAuthorized, StateSettled, StateDeclined, StateError},
				StateAuthorized: {StateSettled, StateCancelled},
				StateSettled:    {},
				StateDeclined:   {},
				StateError:      {},
				StateCancelled:  {},
			},
		}),
		sink: sink,
		lg:   lg,
	}
}

// CanTransition reports whether the table permits the move.
func (sm *StateMachine) CanTransition(from, to State) bool {
	return sm.machine.CanTransition(from, to)
}

// Transition moves the payment to the target state and publishes a
// TransitionEvent. A sink failure vetoes the transition.
func (sm *StateMachine) Transition(ctx context.Context, p *Payment, to State) error {
	err := sm.machine.Transition(ctx, &p.State, to, func(ctx context.Context, from, to State) error {
		return sm.sink.Publish(ctx, TransitionEvent{
			PaymentID: p.ID.String(),
			OrderID:   p.OrderID.String(),
			From:      from,
			To:        to,
			Amount:    p.Amount,
		})
	})
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()
	sm.lg.Debug("payment state transition",
		zap.String("payment", p.ID.String()),
		zap.String("to", string(to)),
	)
	return nil
}
