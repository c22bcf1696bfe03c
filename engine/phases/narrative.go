package phases

import (
	"context"
	"fmt"

	"github.com/aventura-project/storyengine/engine/request"
)

// NarrativePrompt is the plain-data input of a narrative generation call.
type NarrativePrompt struct {
	Content      string
	Kind         InputKind
	Mode         request.Mode
	StoryContext string
}

// NarrativeGenerator is the dependency bundle of the narrative phase.
type NarrativeGenerator interface {
	Generate(ctx context.Context, prompt NarrativePrompt) (string, error)
}

// NarrativeResult carries the generated passage, the primary output of the
// whole pipeline.
type NarrativeResult struct {
	Content string `json:"content"`
}

// NarrativePhase produces the story continuation. Unlike the enrichment
// phases, its failure invalidates the generation: the error it emits is
// fatal and halts the pipeline.
type NarrativePhase struct {
	generator NarrativeGenerator
	logger    Logger
}

// NewNarrativePhase creates a NarrativePhase wired to its bundle.
func NewNarrativePhase(generator NarrativeGenerator, logger Logger) *NarrativePhase {
	return &NarrativePhase{
		generator: generator,
		logger:    logger.Bind("phase", PhaseNarrative),
	}
}

// Name implements the Phase interface.
func (p *NarrativePhase) Name() string { return PhaseNarrative }

// Execute implements the Phase interface.
func (p *NarrativePhase) Execute(ctx context.Context, in *Input, emit EmitFunc) Result {
	return run(ctx, PhaseNarrative, p.logger, in, emit, true,
		func() (Result, bool) {
			// The narrative is never optional; there is no feature flag to
			// short-circuit on.
			return nil, false
		},
		func(ctx context.Context) (Result, error) {
			kind := defaultKind(in.Request.Mode)
			if classification, ok := in.Prior.Classification(); ok {
				kind = classification.Kind
			}

			content, err := p.generator.Generate(ctx, NarrativePrompt{
				Content:      in.Request.Content,
				Kind:         kind,
				Mode:         in.Request.Mode,
				StoryContext: in.Request.StoryContext,
			})
			if err != nil {
				return nil, fmt.Errorf("narrative generation failed: %w", err)
			}
			if content == "" {
				return nil, fmt.Errorf("narrative generator returned no content")
			}
			return NarrativeResult{Content: content}, nil
		},
		func() Result { return NarrativeResult{} },
	)
}
