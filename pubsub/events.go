package pubsub

import "context"

const (
	// QueryCompleted marks a query that produced a response.
	QueryCompleted EventType = "query_completed"
	// QueryFailed marks a query that ended with an error.
	QueryFailed EventType = "query_failed"
)

type (
	// EventType identifies the kind of event.
	EventType string

	// Event is one published event with its payload.
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher publishes events to all subscribers.
	Publisher[T any] interface {
		Publish(EventType, T)
	}

	// Subscriber hands out event channels scoped to a context.
	Subscriber[T any] interface {
		Subscribe(context.Context) <-chan Event[T]
	}
)
