// Package sessions tracks in-flight generation requests.
//
// Each generation runs as an independent pipeline instance; the manager is
// the only request-crossing state: a registry for lookup, cancellation and
// concurrency bounding. Finished generations stay queryable until Cleanup
// removes them.
package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aventura-project/storyengine/engine/events"
	"github.com/aventura-project/storyengine/engine/phases"
	"github.com/aventura-project/storyengine/engine/pipeline"
	"github.com/aventura-project/storyengine/engine/request"
)

// State is the lifecycle state of a tracked generation.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// Generation is one tracked run.
type Generation struct {
	ID        string           `json:"id"`
	Request   *request.Request `json:"request"`
	State     State            `json:"state"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
	Result    *pipeline.Result `json:"result,omitempty"`

	cancel *request.CancelToken
	done   chan struct{}
}

// Await blocks until the generation ends and returns its aggregate result.
func (g *Generation) Await() *pipeline.Result {
	<-g.done
	return g.Result
}

// TooManyGenerationsError is returned when the concurrency bound is reached.
type TooManyGenerationsError struct {
	Limit int
}

func (e *TooManyGenerationsError) Error() string {
	return fmt.Sprintf("too many concurrent generations (limit %d)", e.Limit)
}

// Manager runs generations through a shared pipeline and tracks them.
type Manager struct {
	pipeline      *pipeline.Pipeline
	logger        phases.Logger
	maxConcurrent int

	mu          sync.RWMutex
	generations map[string]*Generation
}

// NewManager creates a Manager. maxConcurrent <= 0 means unbounded.
func NewManager(p *pipeline.Pipeline, logger phases.Logger, maxConcurrent int) *Manager {
	return &Manager{
		pipeline:      p,
		logger:        logger.Bind("component", "sessions"),
		maxConcurrent: maxConcurrent,
		generations:   make(map[string]*Generation),
	}
}

// Start begins a generation in the background and returns its tracking
// handle together with the live event stream. The manager installs its own
// cancellation token so Cancel and CancelAll work; a token the caller
// attached via request.WithToken is chained into it, so signaling either
// one aborts the run.
func (m *Manager) Start(ctx context.Context, req *request.Request) (*Generation, <-chan events.Event, error) {
	token := request.NewCancelToken()
	callerToken := req.Token
	req.Token = token

	gen := &Generation{
		ID:        req.RequestID,
		Request:   req,
		State:     StateRunning,
		StartedAt: time.Now().UTC(),
		cancel:    token,
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	if m.maxConcurrent > 0 && m.activeCountLocked() >= m.maxConcurrent {
		limit := m.maxConcurrent
		m.mu.Unlock()
		return nil, nil, &TooManyGenerationsError{Limit: limit}
	}
	if _, exists := m.generations[gen.ID]; exists {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("generation already tracked: %s", gen.ID)
	}
	m.generations[gen.ID] = gen
	m.mu.Unlock()

	if callerToken != nil {
		if callerToken.Signaled() {
			token.Cancel()
		} else if done := callerToken.Done(); done != nil {
			// Watch the caller's token until the run ends.
			go func() {
				select {
				case <-done:
					token.Cancel()
				case <-gen.done:
				}
			}()
		}
	}

	m.logger.Info("generation_started", "generation_id", gen.ID, "story_id", req.StoryID)

	eventChan, resultChan := m.pipeline.RunStream(ctx, req)

	go func() {
		defer close(gen.done)
		defer m.recoverGeneration(gen)

		result, ok := <-resultChan

		m.mu.Lock()
		defer m.mu.Unlock()
		now := time.Now().UTC()
		gen.EndedAt = &now
		if !ok || result == nil {
			gen.State = StateFailed
			return
		}
		gen.Result = result
		switch result.Status {
		case pipeline.StatusAborted:
			gen.State = StateAborted
		case pipeline.StatusFailed:
			gen.State = StateFailed
		default:
			gen.State = StateCompleted
		}
		m.logger.Info("generation_ended",
			"generation_id", gen.ID,
			"state", string(gen.State),
			"duration_ms", result.DurationMS,
		)
	}()

	return gen, eventChan, nil
}

// recoverGeneration converts a panic while finishing a generation into a
// failed state instead of taking the process down.
func (m *Manager) recoverGeneration(gen *Generation) {
	if r := recover(); r != nil {
		m.logger.Error("generation_panic", "generation_id", gen.ID, "panic", fmt.Sprintf("%v", r))
		m.mu.Lock()
		gen.State = StateFailed
		now := time.Now().UTC()
		gen.EndedAt = &now
		m.mu.Unlock()
	}
}

// Get returns a tracked generation.
func (m *Manager) Get(id string) (*Generation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gen, ok := m.generations[id]
	return gen, ok
}

// StateOf returns the current lifecycle state of a tracked generation.
func (m *Manager) StateOf(id string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gen, ok := m.generations[id]
	if !ok {
		return "", false
	}
	return gen.State, true
}

// Cancel signals a running generation's token. Cancelling an already
// finished generation is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	gen, ok := m.generations[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown generation: %s", id)
	}
	gen.cancel.Cancel()
	m.logger.Info("generation_cancel_requested", "generation_id", id)
	return nil
}

// CancelAll signals every running generation.
func (m *Manager) CancelAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, gen := range m.generations {
		if gen.State == StateRunning {
			gen.cancel.Cancel()
		}
	}
}

// ActiveCount returns the number of running generations.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

func (m *Manager) activeCountLocked() int {
	count := 0
	for _, gen := range m.generations {
		if gen.State == StateRunning {
			count++
		}
	}
	return count
}

// Cleanup drops finished generations older than maxAge and returns how many
// were removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, gen := range m.generations {
		if gen.State != StateRunning && gen.EndedAt != nil && gen.EndedAt.Before(cutoff) {
			delete(m.generations, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("generations_cleaned", "removed", removed)
	}
	return removed
}
