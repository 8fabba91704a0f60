// Package events defines the synchronous event sink used for cross-cutting
// side effects (history logging, external notification). Publication happens
// inside the same unit of work as the change that produced the event, and a
// sink error propagates to the caller: a failed subscriber must abort the
// surrounding transaction rather than be silently swallowed.
package events

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event is implemented by all domain events.
type Event interface {
	EventName() string
}

// Sink receives domain events. Implementations must be synchronous: Publish
// returns only after the event has been handled.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// LogSink writes every event to the structured log. It is the default sink
// and doubles as the order history trail in deployments without a dedicated
// history store.
type LogSink struct {
	lg *zap.Logger
}

// NewLogSink creates a LogSink writing to the given logger.
func NewLogSink(lg *zap.Logger) *LogSink {
	return &LogSink{lg: lg}
}

// Publish logs the event at Info level. Events implementing
// zapcore.ObjectMarshaler are logged with their structured fields.
func (s *LogSink) Publish(_ context.Context, ev Event) error {
	if obj, ok := ev.(zapcore.ObjectMarshaler); ok {
		s.lg.Info("event", zap.String("name", ev.EventName()), zap.Object("event", obj))
		return nil
	}
	s.lg.Info("event", zap.String("name", ev.EventName()), zap.Any("event", ev))
	return nil
}
