// Package events defines the generation event stream vocabulary.
//
// Every phase of a generation pipeline reports progress as a sequence of
// typed events. For a single phase invocation the sequence is:
//
//	PhaseStarted, (PhaseError...)?, exactly one of {PhaseCompleted, PhaseAborted, fatal PhaseError}
//
// The event kind is authoritative: a fallback result inside PhaseCompleted is
// indistinguishable from a disabled-feature result by payload alone.
package events

import "time"

// Kind discriminates the event union.
type Kind string

const (
	// KindPhaseStarted is emitted once per phase, before any suspension.
	KindPhaseStarted Kind = "phase_start"
	// KindPhaseCompleted is the successful terminal event, including
	// skipped-feature no-ops and fallbacks after non-fatal errors.
	KindPhaseCompleted Kind = "phase_complete"
	// KindPhaseAborted is the terminal event when cancellation was observed.
	KindPhaseAborted Kind = "aborted"
	// KindPhaseError reports a dependency failure. Fatal errors are terminal
	// for the whole pipeline; non-fatal ones are followed by a PhaseCompleted
	// carrying the phase's fallback result.
	KindPhaseError Kind = "error"
)

// Event is the interface implemented by all generation events.
type Event interface {
	Kind() Kind
	Phase() string
	Timestamp() time.Time
}

// Base carries the fields shared by every event variant.
type Base struct {
	PhaseName string    `json:"phase"`
	At        time.Time `json:"at"`
}

// NewBase creates a Base stamped with the current time.
func NewBase(phase string) Base {
	return Base{PhaseName: phase, At: time.Now().UTC()}
}

// Phase implements the Event interface.
func (b Base) Phase() string { return b.PhaseName }

// Timestamp implements the Event interface.
func (b Base) Timestamp() time.Time { return b.At }

// PhaseStarted is emitted when a phase begins, before any work that can
// suspend.
type PhaseStarted struct {
	Base
}

// Kind implements the Event interface.
func (e PhaseStarted) Kind() Kind { return KindPhaseStarted }

// NewPhaseStarted creates a PhaseStarted event.
func NewPhaseStarted(phase string) PhaseStarted {
	return PhaseStarted{Base: NewBase(phase)}
}

// PhaseCompleted is emitted when a phase finishes successfully. Result is the
// phase-specific payload; a skipped phase completes with its no-op result.
type PhaseCompleted struct {
	Base
	Result any `json:"result"`
}

// Kind implements the Event interface.
func (e PhaseCompleted) Kind() Kind { return KindPhaseCompleted }

// NewPhaseCompleted creates a PhaseCompleted event.
func NewPhaseCompleted(phase string, result any) PhaseCompleted {
	return PhaseCompleted{Base: NewBase(phase), Result: result}
}

// PhaseAborted is emitted when the request's cancellation token was signaled
// at a checkpoint, or when the dependency operation itself reported
// cooperative cancellation. Terminal for the phase and for the pipeline.
type PhaseAborted struct {
	Base
}

// Kind implements the Event interface.
func (e PhaseAborted) Kind() Kind { return KindPhaseAborted }

// NewPhaseAborted creates a PhaseAborted event.
func NewPhaseAborted(phase string) PhaseAborted {
	return PhaseAborted{Base: NewBase(phase)}
}

// PhaseError is emitted when a dependency operation fails unexpectedly.
type PhaseError struct {
	Base
	Err   error `json:"-"`
	Fatal bool  `json:"fatal"`
}

// Kind implements the Event interface.
func (e PhaseError) Kind() Kind { return KindPhaseError }

// Error returns the failure message for logging and UI display.
func (e PhaseError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying failure to errors.Is/As.
func (e PhaseError) Unwrap() error { return e.Err }

// NewPhaseError creates a PhaseError event.
func NewPhaseError(phase string, err error, fatal bool) PhaseError {
	return PhaseError{Base: NewBase(phase), Err: err, Fatal: fatal}
}

// IsTerminal reports whether ev ends its phase's event sequence.
func IsTerminal(ev Event) bool {
	switch e := ev.(type) {
	case PhaseCompleted, PhaseAborted:
		return true
	case PhaseError:
		return e.Fatal
	}
	return false
}
