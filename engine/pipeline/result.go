package pipeline

import (
	"time"

	"github.com/aventura-project/storyengine/engine/phases"
)

// Status is the overall outcome of a generation run.
type Status string

const (
	// StatusCompleted means every configured phase reached a successful
	// terminal event, possibly with degraded fallback results.
	StatusCompleted Status = "completed"
	// StatusAborted means cancellation was observed; phases after the
	// aborted one never started.
	StatusAborted Status = "aborted"
	// StatusFailed means a fatal phase error halted the pipeline.
	StatusFailed Status = "failed"
)

// Result is the aggregate of one generation run: the fold of every started
// phase's result. Phases that never started because of a halt are absent
// from PhaseResults, not defaulted, so callers can tell "ran and no-op'd"
// from "never ran".
type Result struct {
	RequestID string `json:"request_id"`
	Pipeline  string `json:"pipeline"`
	Status    Status `json:"status"`

	// PhaseOrder lists the phases that started, in execution order.
	PhaseOrder []string `json:"phase_order"`
	// PhaseResults holds each started phase's result keyed by phase name.
	PhaseResults map[string]phases.Result `json:"phase_results"`

	// HaltedPhase names the phase whose terminal event stopped the pipeline.
	// Empty when the run completed.
	HaltedPhase string `json:"halted_phase,omitempty"`
	// Err is the fatal error for failed runs.
	Err error `json:"-"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int       `json:"duration_ms"`
}

func newResult(requestID, pipeline string) *Result {
	return &Result{
		RequestID:    requestID,
		Pipeline:     pipeline,
		Status:       StatusCompleted,
		PhaseOrder:   make([]string, 0),
		PhaseResults: make(map[string]phases.Result),
		StartedAt:    time.Now().UTC(),
	}
}

// fold records a started phase's result.
func (r *Result) fold(phase string, res phases.Result) {
	r.PhaseOrder = append(r.PhaseOrder, phase)
	r.PhaseResults[phase] = res
}

func (r *Result) finish() {
	r.CompletedAt = time.Now().UTC()
	r.DurationMS = int(r.CompletedAt.Sub(r.StartedAt).Milliseconds())
}

// Completed reports whether every configured phase ran to a successful
// terminal event.
func (r *Result) Completed() bool { return r.Status == StatusCompleted }

// Results returns a read-only view over the per-phase results, with the
// typed accessors of phases.Results.
func (r *Result) Results() phases.Results {
	return phases.NewResults(r.PhaseResults)
}

// Narrative is a convenience accessor for the primary generated content.
// It returns the empty string when the narrative phase never ran or fell
// back.
func (r *Result) Narrative() string {
	narrative, ok := r.Results().Narrative()
	if !ok {
		return ""
	}
	return narrative.Content
}
