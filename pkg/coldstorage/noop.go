package coldstorage

import (
	"context"
	"log/slog"
	"sync"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// Publish does nothing and returns nil
func (n *NoopEventSink) Publish(ctx context.Context, event Event) error {
	return nil
}

// LoggingEventSink logs every event
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs to logger
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// Publish logs the event
func (l *LoggingEventSink) Publish(ctx context.Context, event Event) error {
	l.logger.InfoContext(ctx, "cold storage event",
		"event", event.Name,
		"document_id", event.DocumentID,
		"repository", event.RepositoryName,
	)
	return nil
}

// CapturingEventSink keeps every published event in memory.
type CapturingEventSink struct {
	mu     sync.Mutex
	events []Event
}

// Publish records the event
func (c *CapturingEventSink) Publish(ctx context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns the recorded events in publish order.
func (c *CapturingEventSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Fired reports whether an event with name was published.
func (c *CapturingEventSink) Fired(name string) bool {
	for _, e := range c.Events() {
		if e.Name == name {
			return true
		}
	}
	return false
}
