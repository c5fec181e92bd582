// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// LogEvent carries a formatted log line.
	LogEvent EventType = "log"

	// RunStartedEvent is published when a trigger creates a new run.
	RunStartedEvent EventType = "run.started"

	// StateChangedEvent is published on every run state transition.
	StateChangedEvent EventType = "run.state_changed"

	// RunFinishedEvent is published once a run reaches Done or Failed.
	RunFinishedEvent EventType = "run.finished"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
