package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/events"
	"github.com/ordwell/ordercore/internal/fsm"
)

type recordSink struct {
	events []events.Event
	err    error
}

func (s *recordSink) Publish(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func newMachine(stock *stubStock, sink events.Sink) *StateMachine {
	return NewStateMachine(stock, sink, zap.NewNop())
}

func TestStateMachineLegality(t *testing.T) {
	sm := newMachine(&stubStock{}, &recordSink{})

	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateAddingItems, StateArrangingPayment, true},
		{StateAddingItems, StateCancelled, true},
		{StateAddingItems, StatePaymentSettled, false},
		{StateArrangingPayment, StateAddingItems, true},
		{StateArrangingPayment, StatePaymentAuthorized, true},
		{StateArrangingPayment, StatePaymentSettled, true},
		{StatePaymentAuthorized, StatePaymentSettled, true},
		{StatePaymentAuthorized, StateAddingItems, false},
		{StatePaymentSettled, StatePartiallyFulfilled, true},
		{StatePaymentSettled, StateFulfilled, true},
		{StatePartiallyFulfilled, StateFulfilled, true},
		{StatePartiallyFulfilled, StateAddingItems, false},
		{StateFulfilled, StateCancelled, false},
		{StateCancelled, StateAddingItems, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, sm.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStateMachineIllegalTransition(t *testing.T) {
	sm := newMachine(&stubStock{}, &recordSink{})
	ord := New(nil)

	err := sm.Transition(context.Background(), ord, StateFulfilled)
	var invalid *fsm.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StateAddingItems, ord.State)
}

func TestStateMachineSettlementSideEffects(t *testing.T) {
	stock := &stubStock{}
	sink := &recordSink{}
	sm := newMachine(stock, sink)

	ord := New(nil)
	ord.State = StateArrangingPayment

	require.NoError(t, sm.Transition(context.Background(), ord, StatePaymentSettled))
	assert.Equal(t, StatePaymentSettled, ord.State)
	assert.False(t, ord.Active)
	require.Len(t, stock.sales, 1)

	require.Len(t, sink.events, 1)
	ev, ok := sink.events[0].(TransitionEvent)
	require.True(t, ok)
	assert.Equal(t, StateArrangingPayment, ev.From)
	assert.Equal(t, StatePaymentSettled, ev.To)
}

func TestStateMachineStockFailureVetoes(t *testing.T) {
	stock := &stubStock{err: errors.New("stock unavailable")}
	sink := &recordSink{}
	sm := newMachine(stock, sink)

	ord := New(nil)
	ord.State = StateArrangingPayment

	err := sm.Transition(context.Background(), ord, StatePaymentSettled)
	require.Error(t, err)
	assert.Equal(t, StateArrangingPayment, ord.State, "failed side effect leaves state unchanged")
	assert.Empty(t, sink.events)
}

func TestStateMachineSinkFailureVetoes(t *testing.T) {
	sink := &recordSink{err: errors.New("sink down")}
	sm := newMachine(&stubStock{}, sink)

	ord := New(nil)
	err := sm.Transition(context.Background(), ord, StateArrangingPayment)
	require.Error(t, err)
	assert.Equal(t, StateAddingItems, ord.State)
}

func TestStateMachineSinkFailureLeavesAggregateUntouched(t *testing.T) {
	sink := &recordSink{err: errors.New("sink down")}
	sm := newMachine(&stubStock{}, sink)

	ord := New(nil)
	ord.State = StateArrangingPayment

	err := sm.Transition(context.Background(), ord, StatePaymentSettled)
	require.Error(t, err)
	assert.Equal(t, StateArrangingPayment, ord.State)
	assert.True(t, ord.Active, "vetoed settlement must not finalize the cart")

	err = sm.Transition(context.Background(), ord, StateCancelled)
	require.Error(t, err)
	assert.True(t, ord.Active, "vetoed cancellation must not finalize the cart")
}

func TestStateMachineCancellationFinalizes(t *testing.T) {
	stock := &stubStock{}
	sm := newMachine(stock, &recordSink{})

	ord := New(nil)
	require.NoError(t, sm.Transition(context.Background(), ord, StateCancelled))
	assert.Equal(t, StateCancelled, ord.State)
	assert.False(t, ord.Active)
	assert.Empty(t, stock.sales, "cancellation allocates no stock")
}
