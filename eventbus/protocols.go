// Package eventbus provides the in-process message bus the story app uses to
// fan generation progress out to its listeners (UI status, telemetry, sync)
// and to reach collaborator services (settings store, generation control)
// without direct coupling.
//
// Three messaging patterns:
//   - Publish(event): fire-and-forget, fan-out to all subscribers
//   - Send(command): single handler, handler error returned to the sender
//   - QuerySync(query): request-response, single handler, bounded wait
package eventbus

import (
	"context"
)

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	// MessageCategoryEvent represents fire-and-forget, fan-out to all subscribers.
	MessageCategoryEvent MessageCategory = "event"
	// MessageCategoryQuery represents request-response, single handler.
	MessageCategoryQuery MessageCategory = "query"
	// MessageCategoryCommand represents single-handler dispatch whose error
	// returns to the sender.
	MessageCategoryCommand MessageCategory = "command"
)

// Message is the protocol for all bus messages.
type Message interface {
	// Category returns the message category: "event", "query", or "command".
	Category() string
}

// Query is the protocol for query messages that expect a response.
type Query interface {
	Message
	// IsQuery is a marker method to distinguish queries from other messages.
	IsQuery()
}

// Handler is the protocol for message handlers.
type Handler interface {
	// Handle processes a message and returns a response for queries.
	Handle(ctx context.Context, message Message) (any, error)
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, message Message) (any, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, message Message) (any, error) {
	return f(ctx, message)
}

// Middleware intercepts messages before/after handling for cross-cutting
// concerns: logging, telemetry, circuit breaking.
type Middleware interface {
	// Before is called before the message is handled.
	// Returns the (possibly modified) message, or nil to abort processing.
	Before(ctx context.Context, message Message) (Message, error)

	// After is called after the message is handled.
	// Returns the (possibly modified) result.
	After(ctx context.Context, message Message, result any, err error) (any, error)
}

// Bus is the protocol for the message bus. Components depend on this
// interface, not on the in-memory implementation.
type Bus interface {
	// Publish publishes an event to all subscribers.
	Publish(ctx context.Context, event Message) error

	// Send sends a command to its handler and returns the handler's error.
	Send(ctx context.Context, command Message) error

	// QuerySync sends a query and waits for the response.
	QuerySync(ctx context.Context, query Query) (any, error)

	// Subscribe subscribes to an event type.
	// Returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()

	// RegisterHandler registers a handler for a message type.
	// Only one handler per message type is allowed.
	RegisterHandler(messageType string, handler HandlerFunc) error

	// AddMiddleware adds middleware to the bus.
	// Middleware is executed in registration order.
	AddMiddleware(middleware Middleware)

	// HasHandler checks if a handler is registered for a message type.
	HasHandler(messageType string) bool

	// Clear removes all handlers, subscribers, and middleware.
	Clear()
}
