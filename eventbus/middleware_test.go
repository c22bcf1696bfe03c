package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

func TestLoggingMiddlewarePassesMessagesThrough(t *testing.T) {
	bus := newTestBus()
	bus.AddMiddleware(NewLoggingMiddleware())

	var counter int32
	bus.Subscribe("GenerationStarted", countingHandler(&counter))

	require.NoError(t, bus.Publish(context.Background(), &GenerationStarted{RequestID: "req_1"}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&counter))
}

// =============================================================================
// CIRCUIT BREAKER
// =============================================================================

func TestCircuitOpensAfterThreshold(t *testing.T) {
	bus := newTestBus()
	cb := NewCircuitBreakerMiddleware(2, time.Minute, nil)
	bus.AddMiddleware(cb)

	require.NoError(t, bus.RegisterHandler("GetStorySettings", failingHandler("store down")))

	// Two failures trip the breaker.
	for i := 0; i < 2; i++ {
		_, err := bus.QuerySync(context.Background(), &GetStorySettings{StoryID: "story-1"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", cb.States()["GetStorySettings"])

	// While open, requests are blocked before reaching the handler.
	_, err := bus.QuerySync(context.Background(), &GetStorySettings{StoryID: "story-1"})
	require.Error(t, err)
	var noHandler *NoHandlerError
	assert.ErrorAs(t, err, &noHandler)
}

func TestCircuitHalfOpensAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreakerMiddleware(1, 10*time.Millisecond, nil)
	msg := &GetStorySettings{StoryID: "story-1"}

	// Trip the breaker.
	_, err := cb.Before(context.Background(), msg)
	require.NoError(t, err)
	_, _ = cb.After(context.Background(), msg, nil, assert.AnError)
	assert.Equal(t, "open", cb.States()["GetStorySettings"])

	time.Sleep(20 * time.Millisecond)

	// Next request is let through in half-open state.
	passed, err := cb.Before(context.Background(), msg)
	require.NoError(t, err)
	assert.NotNil(t, passed)
	assert.Equal(t, "half-open", cb.States()["GetStorySettings"])

	// Success closes the circuit.
	_, _ = cb.After(context.Background(), msg, "ok", nil)
	assert.Equal(t, "closed", cb.States()["GetStorySettings"])
}

func TestCircuitReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreakerMiddleware(1, 10*time.Millisecond, nil)
	msg := &GetStorySettings{StoryID: "story-1"}

	_, _ = cb.Before(context.Background(), msg)
	_, _ = cb.After(context.Background(), msg, nil, assert.AnError)
	time.Sleep(20 * time.Millisecond)

	_, _ = cb.Before(context.Background(), msg) // half-open
	_, _ = cb.After(context.Background(), msg, nil, assert.AnError)
	assert.Equal(t, "open", cb.States()["GetStorySettings"])
}

func TestCircuitExcludedTypesBypassBreaker(t *testing.T) {
	bus := newTestBus()
	cb := NewCircuitBreakerMiddleware(1, time.Minute, []string{"CancelGeneration"})
	bus.AddMiddleware(cb)

	require.NoError(t, bus.RegisterHandler("CancelGeneration", failingHandler("boom")))

	// Failures on excluded types never open a circuit.
	for i := 0; i < 3; i++ {
		_ = bus.Send(context.Background(), &CancelGeneration{RequestID: "req_1"})
	}
	_, tracked := cb.States()["CancelGeneration"]
	assert.False(t, tracked)
}

func TestCircuitReset(t *testing.T) {
	cb := NewCircuitBreakerMiddleware(1, time.Minute, nil)
	msg := &GetStorySettings{StoryID: "story-1"}

	_, _ = cb.Before(context.Background(), msg)
	_, _ = cb.After(context.Background(), msg, nil, assert.AnError)
	require.Equal(t, "open", cb.States()["GetStorySettings"])

	cb.Reset("GetStorySettings")
	_, tracked := cb.States()["GetStorySettings"]
	assert.False(t, tracked)

	_, _ = cb.Before(context.Background(), msg)
	_, _ = cb.After(context.Background(), msg, nil, assert.AnError)
	cb.ResetAll()
	assert.Empty(t, cb.States())
}
