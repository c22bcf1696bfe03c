package phases

import (
	"context"
	"fmt"
)

// Translator is the dependency bundle of the translation phase.
type Translator interface {
	// Translate returns text rendered in the target language. It must apply
	// its own bounded timeout and fail rather than hang.
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// TranslationResult reports the translation outcome. The disabled, aborted
// and errored paths all produce the same neutral payload; the event kind is
// what distinguishes them.
type TranslationResult struct {
	Translated        bool    `json:"translated"`
	TranslatedContent *string `json:"translated_content"`
	TargetLanguage    *string `json:"target_language"`
}

// TranslationPhase renders the freshly generated passage in the reader's
// language. Translation is an enrichment: its failures are never fatal, the
// reader keeps the original-language text.
type TranslationPhase struct {
	translator Translator
	logger     Logger
}

// NewTranslationPhase creates a TranslationPhase wired to its bundle.
func NewTranslationPhase(translator Translator, logger Logger) *TranslationPhase {
	return &TranslationPhase{
		translator: translator,
		logger:     logger.Bind("phase", PhaseTranslation),
	}
}

// Name implements the Phase interface.
func (p *TranslationPhase) Name() string { return PhaseTranslation }

// Execute implements the Phase interface.
func (p *TranslationPhase) Execute(ctx context.Context, in *Input, emit EmitFunc) Result {
	settings := in.Request.Settings.Translation

	return run(ctx, PhaseTranslation, p.logger, in, emit, false,
		func() (Result, bool) {
			if !settings.Enabled || settings.TargetLanguage == "" {
				return TranslationResult{}, true
			}
			return nil, false
		},
		func(ctx context.Context) (Result, error) {
			translated, err := p.translator.Translate(ctx, p.sourceText(in), settings.TargetLanguage)
			if err != nil {
				return nil, fmt.Errorf("translation failed: %w", err)
			}
			lang := settings.TargetLanguage
			return TranslationResult{
				Translated:        true,
				TranslatedContent: &translated,
				TargetLanguage:    &lang,
			}, nil
		},
		func() Result { return TranslationResult{} },
	)
}

// sourceText picks what gets translated: the passage produced earlier in this
// run when the narrative phase contributed one, otherwise the raw content.
func (p *TranslationPhase) sourceText(in *Input) string {
	if narrative, ok := in.Prior.Narrative(); ok && narrative.Content != "" {
		return narrative.Content
	}
	return in.Request.Content
}
