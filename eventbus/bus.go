package eventbus

import (
	"context"
	"log"
	"sync"
	"time"
)

// InMemoryBus is the in-memory implementation of Bus.
//
// Thread-safe message bus for single-process deployments: the desktop app
// runs the whole engine in one process, so in-memory fan-out is all the
// transport the generation events need.
//
// Usage:
//
//	bus := NewInMemoryBus(30 * time.Second)
//
//	// Register handlers
//	bus.RegisterHandler("GetStorySettings", settingsHandler)
//	bus.Subscribe("PhaseProgress", statusBarHandler)
//
//	// Use the bus
//	bus.Publish(ctx, BridgeEvent(requestID, ev))
//	settings, _ := bus.QuerySync(ctx, &GetStorySettings{StoryID: "story-1"})
type InMemoryBus struct {
	queryTimeout time.Duration

	mu          sync.RWMutex
	handlers    map[string]HandlerFunc
	subscribers map[string][]subscription
	middleware  []Middleware
	nextSubID   int
}

// subscription pairs a handler with a stable id so unsubscribing stays
// correct no matter how many other subscribers come and go.
type subscription struct {
	id      int
	handler HandlerFunc
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus(queryTimeout time.Duration) *InMemoryBus {
	return &InMemoryBus{
		queryTimeout: queryTimeout,
		handlers:     make(map[string]HandlerFunc),
		subscribers:  make(map[string][]subscription),
	}
}

// =============================================================================
// MESSAGING
// =============================================================================

// Publish publishes an event to all subscribers.
// Subscribers run concurrently; one failing subscriber never blocks the rest,
// and subscriber errors are reported to middleware, not to the publisher.
func (b *InMemoryBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processed, err := b.applyBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		log.Printf("eventbus: event %s blocked by middleware", eventType)
		return nil
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[eventType]))
	copy(subs, b.subscribers[eventType])
	b.mu.RUnlock()

	if len(subs) == 0 {
		_, _ = b.applyAfter(ctx, event, nil, nil)
		return nil
	}

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error
	for _, sub := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			if _, err := s.handler(ctx, processed); err != nil {
				log.Printf("eventbus: subscriber failed for %s: %v", eventType, err)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(sub)
	}
	wg.Wait()

	_, _ = b.applyAfter(ctx, event, nil, firstErr)
	return nil
}

// Send sends a command to its single handler and returns the handler's
// error. A command with no handler is a logged no-op.
func (b *InMemoryBus) Send(ctx context.Context, command Message) error {
	messageType := GetMessageType(command)

	processed, err := b.applyBefore(ctx, command)
	if err != nil {
		return err
	}
	if processed == nil {
		log.Printf("eventbus: command %s blocked by middleware", messageType)
		return nil
	}

	handler, ok := b.handlerFor(messageType)
	if !ok {
		log.Printf("eventbus: no handler for command %s", messageType)
		return nil
	}

	_, handlerErr := handler(ctx, processed)
	_, _ = b.applyAfter(ctx, command, nil, handlerErr)
	return handlerErr
}

// QuerySync sends a query and waits for the response, bounded by the bus
// query timeout. Queries require a registered handler.
func (b *InMemoryBus) QuerySync(ctx context.Context, query Query) (any, error) {
	messageType := GetMessageType(query)

	processed, err := b.applyBefore(ctx, query)
	if err != nil {
		return nil, err
	}
	if processed == nil {
		return nil, NewNoHandlerError(messageType)
	}

	handler, ok := b.handlerFor(messageType)
	if !ok {
		return nil, NewNoHandlerError(messageType)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.queryTimeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, e := handler(timeoutCtx, processed)
		done <- outcome{value: v, err: e}
	}()

	select {
	case <-timeoutCtx.Done():
		err := NewQueryTimeoutError(messageType, b.queryTimeout)
		_, _ = b.applyAfter(ctx, query, nil, err)
		return nil, err
	case out := <-done:
		value, afterErr := b.applyAfter(ctx, query, out.value, out.err)
		if afterErr != nil {
			return value, afterErr
		}
		return value, out.err
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe subscribes to an event type and returns an idempotent
// unsubscribe function.
func (b *InMemoryBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[eventType]
			for i, sub := range subs {
				if sub.id == id {
					b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// RegisterHandler registers the handler for a message type.
// Only one handler per message type is allowed.
func (b *InMemoryBus) RegisterHandler(messageType string, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[messageType]; exists {
		return NewHandlerAlreadyRegisteredError(messageType)
	}
	b.handlers[messageType] = handler
	return nil
}

// AddMiddleware appends middleware. Before hooks run in registration order,
// After hooks in reverse.
func (b *InMemoryBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// =============================================================================
// INTROSPECTION AND LIFECYCLE
// =============================================================================

// HasHandler checks if a handler is registered for a message type.
func (b *InMemoryBus) HasHandler(messageType string) bool {
	_, ok := b.handlerFor(messageType)
	return ok
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *InMemoryBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Clear removes all handlers, subscribers, and middleware.
func (b *InMemoryBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string]HandlerFunc)
	b.subscribers = make(map[string][]subscription)
	b.middleware = nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *InMemoryBus) handlerFor(messageType string) (HandlerFunc, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handler, ok := b.handlers[messageType]
	return handler, ok
}

func (b *InMemoryBus) middlewareChain() []Middleware {
	b.mu.RLock()
	defer b.mu.RUnlock()
	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	return chain
}

// applyBefore threads the message through every Before hook. A nil message
// from a hook blocks processing.
func (b *InMemoryBus) applyBefore(ctx context.Context, message Message) (Message, error) {
	current := message
	for _, mw := range b.middlewareChain() {
		next, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

// applyAfter threads the result through every After hook in reverse order.
// A hook may replace the result or the error.
func (b *InMemoryBus) applyAfter(ctx context.Context, message Message, result any, err error) (any, error) {
	chain := b.middlewareChain()
	for i := len(chain) - 1; i >= 0; i-- {
		next, afterErr := chain[i].After(ctx, message, result, err)
		if afterErr != nil {
			err = afterErr
		}
		if next != nil {
			result = next
		}
	}
	return result, err
}

var _ Bus = (*InMemoryBus)(nil)
