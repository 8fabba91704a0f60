package order

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ordwell/ordercore/internal/events"
	"github.com/ordwell/ordercore/internal/fsm"
)

// transitions is the order lifecycle table. Cancelled is reachable from every
// non-terminal state; Fulfilled and Cancelled are terminal.
var transitions = map[State][]State{
	StateAddingItems: {StateArrangingPayment, StateCancelled},
	// The back-edge to AddingItems lets a customer reopen the cart before a
	// payment exists.
	StateArrangingPayment:   {StateAddingItems, StatePaymentAuthorized, StatePaymentSettled, StateCancelled},
	StatePaymentAuthorized:  {StatePaymentSettled, StateCancelled},
	StatePaymentSettled:     {StatePartiallyFulfilled, StateFulfilled, StateCancelled},
	StatePartiallyFulfilled: {StateFulfilled, StateCancelled},
	StateFulfilled:          {},
	StateCancelled:          {},
}

// TransitionEvent is published after an order changes lifecycle state.
type TransitionEvent struct {
	OrderID string
	Code    string
	From    State
	To      State
}

// EventName implements events.Event.
func (TransitionEvent) EventName() string { return "order.state_transition" }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e TransitionEvent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("orderId", e.OrderID)
	enc.AddString("code", e.Code)
	enc.AddString("from", string(e.From))
	enc.AddString("to", string(e.To))
	return nil
}

// StateMachine governs order lifecycle transitions and their entry side
// effects. Entering PaymentSettled creates stock sale movements for every
// line and finalizes the cart; entering Cancelled finalizes the cart. A
// failed side effect vetoes the transition, so the order is never recorded
// as settled without its stock movements.
type StateMachine struct {
	machine *fsm.Machine[State]
	stock   StockAllocator
	sink    events.Sink
	lg      *zap.Logger
}

// NewStateMachine creates the order state machine with its side-effect
// collaborators.
func NewStateMachine(stock StockAllocator, sink events.Sink, lg *zap.Logger) *StateMachine {
	return &StateMachine{
		machine: fsm.New(fsm.Config[State]{
			Name:        "order",
			Initial:     StateAddingItems,
			Transitions: transitions,
		}),
		stock: stock,
		sink:  sink,
		lg:    lg,
	}
}

// CanTransition reports whether the lifecycle table permits the move.
func (sm *StateMachine) CanTransition(from, to State) bool {
	return sm.machine.CanTransition(from, to)
}

// NextStates returns the states reachable from the given state.
func (sm *StateMachine) NextStates(from State) []State {
	return sm.machine.NextStates(from)
}

// Transition moves the order to the target state, running entry side effects
// first. On hook failure the order state is unchanged and no event is
// published.
func (sm *StateMachine) Transition(ctx context.Context, ord *Order, to State) error {
	err := sm.machine.Transition(ctx, &ord.State, to, func(ctx context.Context, from, to State) error {
		return sm.onEnter(ctx, ord, from, to)
	})
	if err != nil {
		return err
	}

	sm.lg.Debug("order state transition",
		zap.String("order", ord.Code),
		zap.String("to", string(to)),
	)
	return nil
}

func (sm *StateMachine) onEnter(ctx context.Context, ord *Order, from, to State) error {
	if to == StatePaymentSettled {
		if err := sm.stock.CreateSalesForOrder(ctx, ord); err != nil {
			return err
		}
	}

	if err := sm.sink.Publish(ctx, TransitionEvent{
		OrderID: ord.ID.String(),
		Code:    ord.Code,
		From:    from,
		To:      to,
	}); err != nil {
		return err
	}

	// Mutate the aggregate only once nothing can veto the transition.
	switch to {
	case StatePaymentSettled, StateCancelled:
		ord.Active = false
	}
	return nil
}
