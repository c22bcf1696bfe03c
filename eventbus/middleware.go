package eventbus

import (
	"context"
	"log"
	"sync"
	"time"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all message traffic.
type LoggingMiddleware struct{}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{}
}

// Before logs message receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	log.Printf("eventbus: %s %s", message.Category(), GetMessageType(message))
	return message, nil
}

// After logs message completion.
func (m *LoggingMiddleware) After(ctx context.Context, message Message, result any, err error) (any, error) {
	if err != nil {
		log.Printf("eventbus: %s failed: %v", GetMessageType(message), err)
	}
	return result, nil
}

// =============================================================================
// CIRCUIT BREAKER MIDDLEWARE
// =============================================================================

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker is the per-message-type state machine. Callers hold the
// middleware's lock.
type breaker struct {
	state       circuitState
	failures    int
	lastFailure time.Time
}

// allow reports whether a message may pass. An open breaker moves to
// half-open once the cooldown has elapsed, letting one probe through.
func (b *breaker) allow(now time.Time, cooldown time.Duration) bool {
	if b.state != circuitOpen {
		return true
	}
	if now.Sub(b.lastFailure) >= cooldown {
		b.state = circuitHalfOpen
		return true
	}
	return false
}

// record folds one handler outcome into the state machine. A threshold of
// zero means failures never open the breaker.
func (b *breaker) record(failed bool, now time.Time, threshold int) {
	if failed {
		b.failures++
		b.lastFailure = now
		if b.state == circuitHalfOpen || (threshold > 0 && b.failures >= threshold) {
			b.state = circuitOpen
		}
		return
	}
	if b.state == circuitHalfOpen {
		b.state = circuitClosed
		b.failures = 0
	}
}

// CircuitBreakerMiddleware blocks message types whose handlers keep failing,
// so a flaky collaborator (settings store, remote status query) cannot stall
// every generation that consults it. Each message type gets its own breaker;
// types listed as exempt are never tracked.
type CircuitBreakerMiddleware struct {
	threshold int
	cooldown  time.Duration
	exempt    map[string]struct{}

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewCircuitBreakerMiddleware creates a breaker that opens after threshold
// consecutive failures and probes again after cooldown.
func NewCircuitBreakerMiddleware(threshold int, cooldown time.Duration, exempt []string) *CircuitBreakerMiddleware {
	m := &CircuitBreakerMiddleware{
		threshold: threshold,
		cooldown:  cooldown,
		exempt:    make(map[string]struct{}, len(exempt)),
		breakers:  make(map[string]*breaker),
	}
	for _, t := range exempt {
		m.exempt[t] = struct{}{}
	}
	return m
}

func (m *CircuitBreakerMiddleware) breakerFor(msgType string) *breaker {
	b, ok := m.breakers[msgType]
	if !ok {
		b = &breaker{}
		m.breakers[msgType] = b
	}
	return b
}

// Before blocks the message when its breaker is open.
func (m *CircuitBreakerMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	msgType := GetMessageType(message)
	if _, ok := m.exempt[msgType]; ok {
		return message, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerFor(msgType).allow(time.Now(), m.cooldown) {
		log.Printf("eventbus: circuit open for %s, blocking", msgType)
		return nil, nil
	}
	return message, nil
}

// After records the handler outcome.
func (m *CircuitBreakerMiddleware) After(ctx context.Context, message Message, result any, err error) (any, error) {
	msgType := GetMessageType(message)
	if _, ok := m.exempt[msgType]; ok {
		return result, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerFor(msgType).record(err != nil, time.Now(), m.threshold)
	return result, nil
}

// States returns the current breaker state per tracked message type.
func (m *CircuitBreakerMiddleware) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]string, len(m.breakers))
	for msgType, b := range m.breakers {
		states[msgType] = b.state.String()
	}
	return states
}

// Reset drops the breaker for one message type.
func (m *CircuitBreakerMiddleware) Reset(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, msgType)
}

// ResetAll drops every breaker.
func (m *CircuitBreakerMiddleware) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers = make(map[string]*breaker)
}

var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*CircuitBreakerMiddleware)(nil)
)
