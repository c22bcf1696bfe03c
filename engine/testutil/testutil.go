// Package testutil provides shared test utilities and mocks for the engine.
//
// All mocks in this package are designed for testing the pipeline and its
// phases in isolation without requiring a live model provider.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/aventura-project/storyengine/engine/config"
	"github.com/aventura-project/storyengine/engine/events"
	"github.com/aventura-project/storyengine/engine/phases"
	"github.com/aventura-project/storyengine/engine/request"
)

// =============================================================================
// MOCK CLASSIFIER
// =============================================================================

// MockClassifier implements phases.Classifier for testing.
type MockClassifier struct {
	// Kind is the kind returned on success.
	Kind phases.InputKind

	// Error causes Classify to return this error.
	Error error

	// Delay simulates provider latency.
	Delay time.Duration

	// Calls records classified content for assertion.
	Calls []string

	// ClassifyFunc allows custom classification logic.
	ClassifyFunc func(ctx context.Context, content string) (phases.InputKind, error)

	mu sync.Mutex
}

// NewMockClassifier creates a MockClassifier that classifies everything as an action.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{Kind: phases.InputKindAction}
}

// Classify implements phases.Classifier.
func (m *MockClassifier) Classify(ctx context.Context, content string) (phases.InputKind, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, content)
	customFunc := m.ClassifyFunc
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, content)
	}

	if err := mockWait(ctx, m.Delay); err != nil {
		return "", err
	}

	if m.Error != nil {
		return "", m.Error
	}
	return m.Kind, nil
}

// CallCount returns the number of calls (thread-safe).
func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// =============================================================================
// MOCK NARRATIVE GENERATOR
// =============================================================================

// MockGenerator implements phases.NarrativeGenerator for testing.
type MockGenerator struct {
	// Content is the passage returned on success.
	Content string

	// Error causes Generate to return this error.
	Error error

	// Delay simulates provider latency.
	Delay time.Duration

	// Calls records prompts for assertion.
	Calls []phases.NarrativePrompt

	// GenerateFunc allows custom generation logic.
	GenerateFunc func(ctx context.Context, prompt phases.NarrativePrompt) (string, error)

	mu sync.Mutex
}

// NewMockGenerator creates a MockGenerator with a fixed passage.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Content: "The corridor opens into a vaulted hall."}
}

// Generate implements phases.NarrativeGenerator.
func (m *MockGenerator) Generate(ctx context.Context, prompt phases.NarrativePrompt) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	customFunc := m.GenerateFunc
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, prompt)
	}

	if err := mockWait(ctx, m.Delay); err != nil {
		return "", err
	}

	if m.Error != nil {
		return "", m.Error
	}
	return m.Content, nil
}

// CallCount returns the number of calls (thread-safe).
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastPrompt returns the most recent prompt, if any.
func (m *MockGenerator) LastPrompt() (phases.NarrativePrompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return phases.NarrativePrompt{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}

// =============================================================================
// MOCK TRANSLATOR
// =============================================================================

// TranslateCall records a single translation call for assertion.
type TranslateCall struct {
	Text           string
	TargetLanguage string
}

// MockTranslator implements phases.Translator for testing.
type MockTranslator struct {
	// Translated is the text returned on success.
	Translated string

	// Error causes Translate to return this error.
	Error error

	// Delay simulates provider latency.
	Delay time.Duration

	// Calls records all calls for assertion.
	Calls []TranslateCall

	// TranslateFunc allows custom translation logic.
	TranslateFunc func(ctx context.Context, text, targetLanguage string) (string, error)

	mu sync.Mutex
}

// NewMockTranslator creates a MockTranslator with a fixed response.
func NewMockTranslator(translated string) *MockTranslator {
	return &MockTranslator{Translated: translated}
}

// Translate implements phases.Translator.
func (m *MockTranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, TranslateCall{Text: text, TargetLanguage: targetLanguage})
	customFunc := m.TranslateFunc
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, text, targetLanguage)
	}

	if err := mockWait(ctx, m.Delay); err != nil {
		return "", err
	}

	if m.Error != nil {
		return "", m.Error
	}
	return m.Translated, nil
}

// CallCount returns the number of calls (thread-safe).
func (m *MockTranslator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// =============================================================================
// MOCK IMAGE PROMPTER
// =============================================================================

// MockPrompter implements phases.ImagePrompter for testing.
type MockPrompter struct {
	// Prompt is the image prompt returned on success.
	Prompt string

	// Error causes ImagePrompt to return this error.
	Error error

	// Delay simulates provider latency.
	Delay time.Duration

	// CallCount tracks the number of ImagePrompt calls.
	CallCount int

	mu sync.Mutex
}

// NewMockPrompter creates a MockPrompter with a fixed prompt.
func NewMockPrompter() *MockPrompter {
	return &MockPrompter{Prompt: "a vaulted stone hall lit by torches"}
}

// ImagePrompt implements phases.ImagePrompter.
func (m *MockPrompter) ImagePrompt(ctx context.Context, passage, style string) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if err := mockWait(ctx, m.Delay); err != nil {
		return "", err
	}

	if m.Error != nil {
		return "", m.Error
	}
	return m.Prompt, nil
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockPrompter) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// =============================================================================
// MOCK ACTION SUGGESTER
// =============================================================================

// MockSuggester implements phases.ActionSuggester for testing.
type MockSuggester struct {
	// Suggestions are returned on success.
	Suggestions []string

	// Error causes Suggest to return this error.
	Error error

	// Delay simulates provider latency.
	Delay time.Duration

	// CallCount tracks the number of Suggest calls.
	CallCount int

	mu sync.Mutex
}

// NewMockSuggester creates a MockSuggester with three fixed suggestions.
func NewMockSuggester() *MockSuggester {
	return &MockSuggester{
		Suggestions: []string{"Open the door", "Listen at the wall", "Turn back"},
	}
}

// Suggest implements phases.ActionSuggester.
func (m *MockSuggester) Suggest(ctx context.Context, passage string, count int) ([]string, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if err := mockWait(ctx, m.Delay); err != nil {
		return nil, err
	}

	if m.Error != nil {
		return nil, m.Error
	}
	return m.Suggestions, nil
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockSuggester) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements phases.Logger for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

func (m *MockLogger) Bind(fields ...any) phases.Logger {
	return m
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.Logs {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// EVENT COLLECTOR
// =============================================================================

// EventCollector captures emitted events for assertion.
type EventCollector struct {
	events []events.Event
	mu     sync.Mutex
}

// NewEventCollector creates an EventCollector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit records an event. Pass this method as a phases.EmitFunc.
func (c *EventCollector) Emit(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of the captured events (thread-safe).
func (c *EventCollector) Events() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]events.Event, len(c.events))
	copy(copied, c.events)
	return copied
}

// Kinds returns the event kinds in emission order.
func (c *EventCollector) Kinds() []events.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make([]events.Kind, len(c.events))
	for i, ev := range c.events {
		kinds[i] = ev.Kind()
	}
	return kinds
}

// KindsFor returns the event kinds for one phase, in emission order.
func (c *EventCollector) KindsFor(phase string) []events.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()

	var kinds []events.Kind
	for _, ev := range c.events {
		if ev.Phase() == phase {
			kinds = append(kinds, ev.Kind())
		}
	}
	return kinds
}

// Clear removes all captured events.
func (c *EventCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// =============================================================================
// BUNDLE AND REQUEST HELPERS
// =============================================================================

// NewMockBundle creates a complete provider bundle backed by mocks.
func NewMockBundle() *phases.Bundle {
	return &phases.Bundle{
		Classifier: NewMockClassifier(),
		Generator:  NewMockGenerator(),
		Translator: NewMockTranslator("Bonjour"),
		Prompter:   NewMockPrompter(),
		Suggester:  NewMockSuggester(),
	}
}

// NewTestRequest creates a request with test defaults.
func NewTestRequest(content string, opts ...request.Option) *request.Request {
	return request.New("story-test", content, request.ModeAdventure, opts...)
}

// NewTestPipelineConfig creates a pipeline config for testing.
// With no names given it enables all five phases in default order.
func NewTestPipelineConfig(names ...string) *config.PipelineConfig {
	if len(names) == 0 {
		return config.DefaultPipelineConfig()
	}

	cfg := config.NewPipelineConfig("test-pipeline")
	for _, name := range names {
		cfg.Phases = append(cfg.Phases, &config.PhaseConfig{
			Name:           name,
			Enabled:        true,
			ModelRole:      "utility",
			TimeoutSeconds: 15,
		})
	}
	return cfg
}

// mockWait sleeps for d, honoring context cancellation.
func mockWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
