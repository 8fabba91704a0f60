package fsm

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() *Machine[string] {
	return New(Config[string]{
		Name:    "doc",
		Initial: "draft",
		Transitions: map[string][]string{
			"draft":     {"review", "archived"},
			"review":    {"draft", "published"},
			"published": {"archived"},
			"archived":  {},
		},
	})
}

func TestMachine_CanTransition(t *testing.T) {
	m := newTestMachine()

	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"allowed forward", "draft", "review", true},
		{"allowed backward", "review", "draft", true},
		{"not in table", "draft", "published", false},
		{"terminal state", "archived", "draft", false},
		{"unknown from state", "bogus", "draft", false},
		{"self transition not listed", "draft", "draft", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.CanTransition(tt.from, tt.to))
		})
	}
}

func TestMachine_NextStates(t *testing.T) {
	m := newTestMachine()

	assert.ElementsMatch(t, []string{"review", "archived"}, m.NextStates("draft"))
	assert.Empty(t, m.NextStates("archived"))
	assert.Empty(t, m.NextStates("unknown"))
}

func TestMachine_Transition(t *testing.T) {
	ctx := context.Background()

	t.Run("applies state on success", func(t *testing.T) {
		m := newTestMachine()
		state := "draft"

		err := m.Transition(ctx, &state, "review", nil)
		require.NoError(t, err)
		assert.Equal(t, "review", state)
	})

	t.Run("rejects illegal transition", func(t *testing.T) {
		m := newTestMachine()
		state := "draft"

		err := m.Transition(ctx, &state, "published", nil)

		var invErr *InvalidTransitionError
		require.ErrorAs(t, err, &invErr)
		assert.Equal(t, "doc", invErr.Machine)
		assert.Equal(t, "draft", invErr.From)
		assert.Equal(t, "published", invErr.To)
		assert.Equal(t, "draft", state, "state must be unchanged after rejection")
	})

	t.Run("runs entry hook before applying state", func(t *testing.T) {
		m := newTestMachine()
		state := "draft"

		var hookFrom, hookTo string
		var stateDuringHook string
		err := m.Transition(ctx, &state, "review", func(_ context.Context, from, to string) error {
			hookFrom, hookTo = from, to
			stateDuringHook = state
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, "draft", hookFrom)
		assert.Equal(t, "review", hookTo)
		assert.Equal(t, "draft", stateDuringHook, "hook must observe the pre-transition state")
		assert.Equal(t, "review", state)
	})

	t.Run("hook veto leaves state unchanged", func(t *testing.T) {
		m := newTestMachine()
		state := "draft"
		boom := errors.New("side effect failed")

		err := m.Transition(ctx, &state, "review", func(context.Context, string, string) error {
			return boom
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "draft", state)
	})
}

func TestMachine_ConfigCopied(t *testing.T) {
	table := map[string][]string{"a": {"b"}}
	m := New(Config[string]{Name: "copy", Initial: "a", Transitions: table})

	table["a"][0] = "c"
	assert.True(t, m.CanTransition("a", "b"), "machine must not observe mutation of the source table")
}
