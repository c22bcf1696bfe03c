package phases

import (
	"context"
	"fmt"
)

// ActionSuggester is the dependency bundle of the suggestions phase.
type ActionSuggester interface {
	Suggest(ctx context.Context, passage string, count int) ([]string, error)
}

// SuggestionsResult carries next-action suggestions shown under the passage.
// Empty on the disabled and degraded paths.
type SuggestionsResult struct {
	Suggestions []string `json:"suggestions"`
}

// SuggestionsPhase proposes what the player might do next. Non-fatal: a
// generation without suggestions is still a generation.
type SuggestionsPhase struct {
	suggester ActionSuggester
	logger    Logger
}

// NewSuggestionsPhase creates a SuggestionsPhase wired to its bundle.
func NewSuggestionsPhase(suggester ActionSuggester, logger Logger) *SuggestionsPhase {
	return &SuggestionsPhase{
		suggester: suggester,
		logger:    logger.Bind("phase", PhaseSuggestions),
	}
}

// Name implements the Phase interface.
func (p *SuggestionsPhase) Name() string { return PhaseSuggestions }

// Execute implements the Phase interface.
func (p *SuggestionsPhase) Execute(ctx context.Context, in *Input, emit EmitFunc) Result {
	settings := in.Request.Settings.Suggestions

	return run(ctx, PhaseSuggestions, p.logger, in, emit, false,
		func() (Result, bool) {
			if !settings.Enabled || settings.Count <= 0 {
				return SuggestionsResult{}, true
			}
			if narrative, ok := in.Prior.Narrative(); !ok || narrative.Content == "" {
				return SuggestionsResult{}, true
			}
			return nil, false
		},
		func(ctx context.Context) (Result, error) {
			narrative, _ := in.Prior.Narrative()
			suggestions, err := p.suggester.Suggest(ctx, narrative.Content, settings.Count)
			if err != nil {
				return nil, fmt.Errorf("suggestion generation failed: %w", err)
			}
			if len(suggestions) > settings.Count {
				suggestions = suggestions[:settings.Count]
			}
			return SuggestionsResult{Suggestions: suggestions}, nil
		},
		func() Result { return SuggestionsResult{} },
	)
}

// Bundle groups the dependency operations needed to build every standard
// phase. Implementations must be safe for concurrent use across requests.
type Bundle struct {
	Classifier Classifier
	Generator  NarrativeGenerator
	Translator Translator
	Prompter   ImagePrompter
	Suggester  ActionSuggester
}

// Validate checks that the operations required by the standard phases are
// present.
func (b *Bundle) Validate() error {
	if b.Generator == nil {
		return fmt.Errorf("dependency bundle missing narrative generator")
	}
	if b.Classifier == nil {
		return fmt.Errorf("dependency bundle missing classifier")
	}
	if b.Translator == nil {
		return fmt.Errorf("dependency bundle missing translator")
	}
	if b.Prompter == nil {
		return fmt.Errorf("dependency bundle missing image prompter")
	}
	if b.Suggester == nil {
		return fmt.Errorf("dependency bundle missing action suggester")
	}
	return nil
}
