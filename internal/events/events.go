// Package events carries fire-and-forget notifications out of the core.
// The core never blocks on delivery and never fails because a sink did.
package events

import (
	"log/slog"
	"time"
)

// Kind classifies an event for presentation.
type Kind string

const (
	KindInfo        Kind = "info"
	KindWarning     Kind = "warning"
	KindToolStarted Kind = "tool-started"
	KindToolOutput  Kind = "tool-output"
)

// Event is one notification. Server and Tool are empty when not relevant.
type Event struct {
	Kind    Kind
	Server  string
	Tool    string
	Message string
	Time    time.Time
}

// Sink receives events. Implementations must not block.
type Sink interface {
	Publish(Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(Event) {}

// LogSink writes events through a slog.Logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink wraps a logger as a sink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(e Event) {
	attrs := make([]any, 0, 6)
	attrs = append(attrs, "kind", string(e.Kind))
	if e.Server != "" {
		attrs = append(attrs, "server", e.Server)
	}
	if e.Tool != "" {
		attrs = append(attrs, "tool", e.Tool)
	}
	if e.Kind == KindWarning {
		s.logger.Warn(e.Message, attrs...)
		return
	}
	s.logger.Info(e.Message, attrs...)
}
