package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ordwell/ordercore/internal/events"
	"github.com/ordwell/ordercore/internal/fsm"
)

// RefundState is a refund lifecycle state.
type RefundState string

const (
	RefundPending RefundState = "Pending"
	RefundSettled RefundState = "Settled"
	RefundFailed  RefundState = "Failed"
)

// Refund is one refund request against a payment. Total is the itemized
// amount plus the shipping refund plus the manual adjustment.
type Refund struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	State          RefundState
	ItemsAmount    decimal.Decimal
	ShippingAmount decimal.Decimal
	Adjustment     decimal.Decimal
	Total          decimal.Decimal
	TransactionID  string
	Reason         string
	ItemIDs        []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefundTransitionEvent is published after a refund changes state.
type RefundTransitionEvent struct {
	RefundID  string
	PaymentID string
	From      RefundState
	To        RefundState
	Total     decimal.Decimal
}

// EventName implements events.Event.
func (RefundTransitionEvent) EventName() string { return "refund.state_transition" }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e RefundTransitionEvent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("refundId", e.RefundID)
	enc.AddString("paymentId", e.PaymentID)
	enc.AddString("from", string(e.From))
	enc.AddString("to", string(e.To))
	enc.AddString("total", e.Total.String())
	return nil
}

// RefundStateMachine governs refund lifecycle transitions, mirroring the
// payment machine's event emission.
type RefundStateMachine struct {
	machine *fsm.Machine[RefundState]
	sink    events.Sink
	lg      *zap.Logger
}

// NewRefundStateMachine creates the refund state machine.
func NewRefundStateMachine(sink events.Sink, lg *zap.Logger) *RefundStateMachine {
	return &RefundStateMachine{
		machine: fsm.New(fsm.Config[RefundState]{
			Name:    "refund",
			Initial: RefundPending,
			Transitions: map[RefundState][]RefundState{
				RefundPending: {RefundSettled, RefundFailed},
				RefundSettled: {},
				RefundFailed:  {},
			},
		}),
		sink: sink,
		lg:   lg,
	}
}

// Transition moves the refund to the target state and publishes a
// RefundTransitionEvent. A sink failure vetoes the transition.
func (sm *RefundStateMachine) Transition(ctx context.Context, r *Refund, to RefundState) error {
	err := sm.machine.Transition(ctx, &r.State, to, func(ctx context.Context, from, to RefundState) error {
		return sm.sink.Publish(ctx, RefundTransitionEvent{
			RefundID:  r.ID.String(),
			PaymentID: r.PaymentID.String(),
			From:      from,
			To:        to,
			Total:     r.Total,
		})
	})
	if err != nil {
		return err
	}

	r.UpdatedAt = time.Now().UTC()
	sm.lg.Debug("refund state transition",
		zap.String("refund", r.ID.String()),
		zap.String("to", string(to)),
	)
	return nil
}
