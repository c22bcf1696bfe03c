package phases

import (
	"context"
	"fmt"
)

// ImagePrompter is the dependency bundle of the image prompt phase.
type ImagePrompter interface {
	ImagePrompt(ctx context.Context, passage, style string) (string, error)
}

// ImagePromptResult reports the derived image prompt, or nothing on the
// disabled and degraded paths.
type ImagePromptResult struct {
	Generated bool    `json:"generated"`
	Prompt    *string `json:"prompt"`
	Style     *string `json:"style"`
}

// ImagePromptPhase derives a scene-illustration prompt from the fresh
// passage. Pure enrichment: failures are non-fatal and the passage simply
// ships without an image.
type ImagePromptPhase struct {
	prompter ImagePrompter
	logger   Logger
}

// NewImagePromptPhase creates an ImagePromptPhase wired to its bundle.
func NewImagePromptPhase(prompter ImagePrompter, logger Logger) *ImagePromptPhase {
	return &ImagePromptPhase{
		prompter: prompter,
		logger:   logger.Bind("phase", PhaseImagePrompt),
	}
}

// Name implements the Phase interface.
func (p *ImagePromptPhase) Name() string { return PhaseImagePrompt }

// Execute implements the Phase interface.
func (p *ImagePromptPhase) Execute(ctx context.Context, in *Input, emit EmitFunc) Result {
	settings := in.Request.Settings.Images

	return run(ctx, PhaseImagePrompt, p.logger, in, emit, false,
		func() (Result, bool) {
			if !settings.Enabled {
				return ImagePromptResult{}, true
			}
			// No passage means nothing to illustrate.
			if narrative, ok := in.Prior.Narrative(); !ok || narrative.Content == "" {
				return ImagePromptResult{}, true
			}
			return nil, false
		},
		func(ctx context.Context) (Result, error) {
			narrative, _ := in.Prior.Narrative()
			prompt, err := p.prompter.ImagePrompt(ctx, narrative.Content, settings.Style)
			if err != nil {
				return nil, fmt.Errorf("image prompt generation failed: %w", err)
			}
			style := settings.Style
			return ImagePromptResult{Generated: true, Prompt: &prompt, Style: &style}, nil
		},
		func() Result { return ImagePromptResult{} },
	)
}
