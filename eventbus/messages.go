// Package eventbus message definitions.
//
// Messages are organized by domain:
//   - Generation lifecycle events (fan-out: UI status, telemetry, sync)
//   - Control commands (cancel)
//   - Store queries (settings)
package eventbus

import (
	"github.com/aventura-project/storyengine/engine/events"
	"github.com/aventura-project/storyengine/engine/request"
)

// =============================================================================
// GENERATION LIFECYCLE EVENTS
// =============================================================================

// GenerationStarted is emitted when a generation request enters the pipeline.
// Subscribers: UI status bar, telemetry.
type GenerationStarted struct {
	RequestID string `json:"request_id"`
	StoryID   string `json:"story_id"`
	Mode      string `json:"mode"`
}

// Category implements the Message interface.
func (m *GenerationStarted) Category() string { return string(MessageCategoryEvent) }

// PhaseProgress wraps one pipeline event for bus delivery. The wrapped
// event's kind stays authoritative; subscribers must not infer the outcome
// from result payloads.
type PhaseProgress struct {
	RequestID string       `json:"request_id"`
	Phase     string       `json:"phase"`
	Kind      events.Kind  `json:"kind"`
	Event     events.Event `json:"event"`
}

// Category implements the Message interface.
func (m *PhaseProgress) Category() string { return string(MessageCategoryEvent) }

// GenerationFinished is emitted when a generation leaves the pipeline, in
// any terminal state.
// Subscribers: UI status bar, telemetry, story sync.
type GenerationFinished struct {
	RequestID  string  `json:"request_id"`
	Status     string  `json:"status"` // "completed", "aborted", "failed"
	DurationMS int     `json:"duration_ms"`
	Error      *string `json:"error,omitempty"`
}

// Category implements the Message interface.
func (m *GenerationFinished) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// CONTROL COMMANDS
// =============================================================================

// CancelGeneration asks the session manager to signal a generation's token.
type CancelGeneration struct {
	RequestID string `json:"request_id"`
}

// Category implements the Message interface.
func (m *CancelGeneration) Category() string { return string(MessageCategoryCommand) }

// =============================================================================
// STORE QUERIES
// =============================================================================

// GetStorySettings asks the settings store for a story's feature settings.
// The response is a request.Settings value.
type GetStorySettings struct {
	StoryID string `json:"story_id"`
}

// Category implements the Message interface.
func (m *GetStorySettings) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements the Query interface.
func (m *GetStorySettings) IsQuery() {}

// GetGenerationStatus asks the session manager for a generation's state.
type GetGenerationStatus struct {
	RequestID string `json:"request_id"`
}

// Category implements the Message interface.
func (m *GetGenerationStatus) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements the Query interface.
func (m *GetGenerationStatus) IsQuery() {}

// =============================================================================
// MESSAGE TYPE RESOLUTION
// =============================================================================

// TypedMessage lets a message declare its own routing type.
type TypedMessage interface {
	MessageType() string
}

// GetMessageType returns the routing type of a message.
func GetMessageType(msg Message) string {
	// First check if the message can provide its own type
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	// Otherwise use the static type switch
	switch msg.(type) {
	case *GenerationStarted:
		return "GenerationStarted"
	case *PhaseProgress:
		return "PhaseProgress"
	case *GenerationFinished:
		return "GenerationFinished"
	case *CancelGeneration:
		return "CancelGeneration"
	case *GetStorySettings:
		return "GetStorySettings"
	case *GetGenerationStatus:
		return "GetGenerationStatus"
	default:
		return "Unknown"
	}
}

// =============================================================================
// PIPELINE BRIDGING
// =============================================================================

// BridgeEvent converts a pipeline event into its bus message.
func BridgeEvent(requestID string, ev events.Event) *PhaseProgress {
	return &PhaseProgress{
		RequestID: requestID,
		Phase:     ev.Phase(),
		Kind:      ev.Kind(),
		Event:     ev,
	}
}

// NewGenerationStarted builds the lifecycle event for a request.
func NewGenerationStarted(req *request.Request) *GenerationStarted {
	return &GenerationStarted{
		RequestID: req.RequestID,
		StoryID:   req.StoryID,
		Mode:      string(req.Mode),
	}
}
