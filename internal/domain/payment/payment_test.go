package payment

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/events"
	"github.com/ordwell/ordercore/internal/fsm"
)

type captureSink struct {
	published []events.Event
	err       error
}

func (s *captureSink) Publish(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, ev)
	return nil
}

func newPayment(state State) *Payment {
	return &Payment{
		ID:      uuid.New(),
		OrderID: uuid.New(),
		State:   state,
		Amount:  decimal.NewFromInt(100),
		Method:  "manual",
	}
}

func TestStateMachine_Legality(t *testing.T) {
	sm := NewStateMachine(&captureSink{}, zap.NewNop())

	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateCreated, StateAuthorized, true},
		{StateCreated, StateSettled, true},
		{StateCreated, StateDeclined, true},
		{StateCreated, StateError, true},
		{StateAuthorized, StateSettled, true},
		{StateAuthorized, StateCancelled, true},
		{StateSettled, StateCreated, false},
		{StateDeclined, StateSettled, false},
		{StateError, StateAuthorized, false},
		{StateCancelled, StateSettled, false},
		{StateAuthorized, StateDeclined, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, sm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateMachine_TransitionEmitsEvent(t *testing.T) {
	sink := &captureSink{}
	sm := NewStateMachine(sink, zap.NewNop())
	p := newPayment(StateCreated)

	err := sm.Transition(context.Background(), p, StateAuthorized)
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, p.State)
	assert.False(t, p.UpdatedAt.IsZero())

	require.Len(t, sink.published, 1)
	ev, ok := sink.published[0].(TransitionEvent)
	require.True(t, ok)
	assert.Equal(t, p.ID.String(), ev.PaymentID)
	assert.Equal(t, StateCreated, ev.From)
	assert.Equal(t, StateAuthorized, ev.To)
}

func TestStateMachine_SinkFailureVetoes(t *testing.T) {
	boom := errors.New("history store down")
	sm := NewStateMachine(&captureSink{err: boom}, zap.NewNop())
	p := newPayment(StateCreated)

	err := sm.Transition(context.Background(), p, StateSettled)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateCreated, p.State, "failed side effect must leave state unchanged")
}

func TestStateMachine_IllegalTransition(t *testing.T) {
	sink := &captureSink{}
	sm := NewStateMachine(sink, zap.NewNop())
	p := newPayment(StateSettled)

	err := sm.Transition(context.Background(), p, StateAuthorized)

	var invErr *fsm.InvalidTransitionError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, StateSettled, p.State)
	assert.Empty(t, sink.published, "no event on rejected transition")
}

func TestRefundStateMachine(t *testing.T) {
	sink := &captureSink{}
	sm := NewRefundStateMachine(sink, zap.NewNop())
	r := &Refund{
		ID:        uuid.New(),
		PaymentID: uuid.New(),
		State:     RefundPending,
		Total:     decimal.NewFromInt(25),
	}

	require.NoError(t, sm.Transition(context.Background(), r, RefundSettled))
	assert.Equal(t, RefundSettled, r.State)
	require.Len(t, sink.published, 1)
	ev := sink.published[0].(RefundTransitionEvent)
	assert.Equal(t, RefundPending, ev.From)
	assert.Equal(t, RefundSettled, ev.To)

	err := sm.Transition(context.Background(), r, RefundFailed)
	var invErr *fsm.InvalidTransitionError
	assert.ErrorAs(t, err, &invErr, "settled refund is terminal")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewManualHandler("manual"))

	t.Run("registered handler found", func(t *testing.T) {
		h, err := reg.Handler("manual")
		require.NoError(t, err)
		assert.Equal(t, "manual", h.Code())
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := reg.Handler("stripe")
		var unkErr *UnknownMethodError
		require.ErrorAs(t, err, &unkErr)
		assert.Equal(t, "stripe", unkErr.Method)
	})
}

func TestManualHandler(t *testing.T) {
	h := NewManualHandler("manual")
	ctx := context.Background()

	res, err := h.CreatePayment(ctx, uuid.New(), decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, res.State)
	assert.NotEmpty(t, res.TransactionID)

	p := newPayment(StateAuthorized)
	_, err = h.SettlePayment(ctx, p)
	require.NoError(t, err)

	p.Method = "other"
	_, err = h.SettlePayment(ctx, p)
	assert.Error(t, err)
}
