// Package fsm implements a small finite-state machine engine driven by a
// transition table. The engine knows nothing about the subjects it governs;
// callers supply entry hooks that run side effects and may veto a transition.
package fsm

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// InvalidTransitionError is returned when a requested transition is not
// present in the machine's transition table.
type InvalidTransitionError struct {
	Machine string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition from %q to %q", e.Machine, e.From, e.To)
}

// EntryHook runs when a subject enters a new state. Returning an error vetoes
// the transition: the subject's state is left unchanged and the error is
// surfaced to the caller.
type EntryHook[S comparable] func(ctx context.Context, from, to S) error

// Config describes a state machine: its name (used in error messages), the
// initial state, and the full transition table.
type Config[S comparable] struct {
	Name        string
	Initial     S
	Transitions map[S][]S
}

// Machine validates and executes transitions against a fixed table.
// A zero Machine is not usable; construct one with New.
type Machine[S comparable] struct {
	name        string
	initial     S
	transitions map[S][]S
}

// New builds a Machine from the given config. The transition table is copied
// so later mutation of cfg does not affect the machine.
func New[S comparable](cfg Config[S]) *Machine[S] {
	transitions := make(map[S][]S, len(cfg.Transitions))
	for from, tos := range cfg.Transitions {
		copied := make([]S, len(tos))
		copy(copied, tos)
		transitions[from] = copied
	}
	return &Machine[S]{
		name:        cfg.Name,
		initial:     cfg.Initial,
		transitions: transitions,
	}
}

// Initial returns the machine's initial state.
func (m *Machine[S]) Initial() S {
	return m.initial
}

// CanTransition reports whether the table permits moving from `from` to `to`.
func (m *Machine[S]) CanTransition(from, to S) bool {
	for _, s := range m.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStates returns the set of states reachable from `from` in one step.
func (m *Machine[S]) NextStates(from S) []S {
	tos := m.transitions[from]
	out := make([]S, len(tos))
	copy(out, tos)
	return out
}

// Transition moves the subject's state (held at the given pointer) to the
// target state. The transition is rejected with *InvalidTransitionError when
// the table does not permit it. When a hook is supplied it runs before the
// state is written; a hook error leaves the state untouched, so a transition
// is never applied partially.
func (m *Machine[S]) Transition(ctx context.Context, state *S, to S, hook EntryHook[S]) error {
	from := *state
	if !m.CanTransition(from, to) {
		return &InvalidTransitionError{
			Machine: m.name,
			From:    fmt.Sprintf("%v", from),
			To:      fmt.Sprintf("%v", to),
		}
	}

	if hook != nil {
		if err := hook(ctx, from, to); err != nil {
			return errors.Wrapf(err, "%s: enter %v", m.name, to)
		}
	}

	*state = to
	return nil
}
