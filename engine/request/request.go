// Package request defines the immutable input of a generation pipeline run.
//
// A Request describes one user action in the story app (continue the story,
// take an action, say something) together with the per-feature settings that
// decide which enrichment phases run. The pipeline treats it as read-only;
// the caller owns it and owns the cancellation token inside it.
package request

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects how the narrative phase interprets the player's input.
type Mode string

const (
	// ModeAdventure treats the input as a player action or speech inside the
	// story world.
	ModeAdventure Mode = "adventure"
	// ModeCreative treats the input as author-level direction for the next
	// passage.
	ModeCreative Mode = "creative"
)

// TranslationSettings controls the translation phase.
type TranslationSettings struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	TargetLanguage string `json:"target_language" yaml:"target_language"`
}

// ClassificationSettings controls the input classification phase.
type ClassificationSettings struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ImageSettings controls the image prompt phase.
type ImageSettings struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Style   string `json:"style" yaml:"style"`
}

// SuggestionSettings controls the action suggestion phase.
type SuggestionSettings struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Count   int  `json:"count" yaml:"count"`
}

// Settings groups the per-feature toggles carried by a request.
type Settings struct {
	Classification ClassificationSettings `json:"classification" yaml:"classification"`
	Translation    TranslationSettings    `json:"translation" yaml:"translation"`
	Images         ImageSettings          `json:"images" yaml:"images"`
	Suggestions    SuggestionSettings     `json:"suggestions" yaml:"suggestions"`
}

// Request is the immutable description of one generation. Phases read it and
// never mutate it; per-request state lives in the pipeline's accumulator, not
// here.
type Request struct {
	// Identification
	RequestID string `json:"request_id"`
	StoryID   string `json:"story_id"`
	ChapterID string `json:"chapter_id"`

	// Input
	Content    string    `json:"content"`
	Mode       Mode      `json:"mode"`
	ReceivedAt time.Time `json:"received_at"`

	// Story context handed to the narrative phase verbatim. The store layer
	// assembles this (recent passages, lorebook matches); the pipeline does
	// not interpret it.
	StoryContext string `json:"story_context,omitempty"`

	// Feature settings
	Settings Settings `json:"settings"`

	// Cancellation, owned by the caller.
	Token Token `json:"-"`
}

// Option customizes a Request at construction time.
type Option func(*Request)

// WithToken attaches the caller's cancellation token.
func WithToken(token Token) Option {
	return func(r *Request) { r.Token = token }
}

// WithStoryContext attaches assembled story context.
func WithStoryContext(storyContext string) Option {
	return func(r *Request) { r.StoryContext = storyContext }
}

// WithSettings replaces the default feature settings.
func WithSettings(s Settings) Option {
	return func(r *Request) { r.Settings = s }
}

// WithChapter sets the chapter the generation belongs to.
func WithChapter(chapterID string) Option {
	return func(r *Request) { r.ChapterID = chapterID }
}

// New creates a Request for one user action. Requests without an explicit
// token are never cancelled from the pipeline's point of view.
func New(storyID, content string, mode Mode, opts ...Option) *Request {
	r := &Request{
		RequestID:  "req_" + uuid.New().String()[:16],
		StoryID:    storyID,
		Content:    content,
		Mode:       mode,
		ReceivedAt: time.Now().UTC(),
		Token:      neverToken{},
		Settings: Settings{
			Classification: ClassificationSettings{Enabled: true},
			Suggestions:    SuggestionSettings{Enabled: true, Count: 3},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Token == nil {
		r.Token = neverToken{}
	}
	return r
}
