package phases

import (
	"context"
	"fmt"

	"github.com/aventura-project/storyengine/engine/request"
)

// InputKind is how the player's input should be woven into the story.
type InputKind string

const (
	// InputKindAction is something the protagonist does.
	InputKindAction InputKind = "action"
	// InputKindSpeech is something the protagonist says.
	InputKindSpeech InputKind = "speech"
	// InputKindStory is author-level direction for the next passage.
	InputKindStory InputKind = "story"
)

// Classifier is the dependency bundle of the classify phase.
type Classifier interface {
	Classify(ctx context.Context, content string) (InputKind, error)
}

// ClassifyResult reports how the input was classified. Classified is false on
// the skipped and fallback paths, where Kind holds the mode default.
type ClassifyResult struct {
	Kind       InputKind `json:"kind"`
	Classified bool      `json:"classified"`
}

// ClassifyPhase decides how to treat the player's input before the narrative
// phase runs. Misclassification degrades the prose, not the generation, so
// failures fall back to the mode default and the pipeline moves on.
type ClassifyPhase struct {
	classifier Classifier
	logger     Logger
}

// NewClassifyPhase creates a ClassifyPhase wired to its bundle.
func NewClassifyPhase(classifier Classifier, logger Logger) *ClassifyPhase {
	return &ClassifyPhase{
		classifier: classifier,
		logger:     logger.Bind("phase", PhaseClassify),
	}
}

// Name implements the Phase interface.
func (p *ClassifyPhase) Name() string { return PhaseClassify }

// Execute implements the Phase interface.
func (p *ClassifyPhase) Execute(ctx context.Context, in *Input, emit EmitFunc) Result {
	return run(ctx, PhaseClassify, p.logger, in, emit, false,
		func() (Result, bool) {
			if !in.Request.Settings.Classification.Enabled {
				return ClassifyResult{Kind: defaultKind(in.Request.Mode)}, true
			}
			return nil, false
		},
		func(ctx context.Context) (Result, error) {
			kind, err := p.classifier.Classify(ctx, in.Request.Content)
			if err != nil {
				return nil, fmt.Errorf("input classification failed: %w", err)
			}
			switch kind {
			case InputKindAction, InputKindSpeech, InputKindStory:
			default:
				return nil, fmt.Errorf("unknown input kind: %q", kind)
			}
			return ClassifyResult{Kind: kind, Classified: true}, nil
		},
		func() Result { return ClassifyResult{Kind: defaultKind(in.Request.Mode)} },
	)
}

// defaultKind is the classification assumed when the classifier is disabled
// or unavailable.
func defaultKind(mode request.Mode) InputKind {
	if mode == request.ModeCreative {
		return InputKindStory
	}
	return InputKindAction
}
