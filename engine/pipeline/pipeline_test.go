package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aventura-project/storyengine/engine/config"
	"github.com/aventura-project/storyengine/engine/events"
	"github.com/aventura-project/storyengine/engine/phases"
	"github.com/aventura-project/storyengine/engine/request"
	"github.com/aventura-project/storyengine/engine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestPipeline(t *testing.T, bundle *phases.Bundle) *Pipeline {
	t.Helper()
	p, err := New(testutil.NewTestPipelineConfig(), bundle, testutil.NewMockLogger())
	require.NoError(t, err)
	return p
}

func fullSettings() request.Settings {
	return request.Settings{
		Classification: request.ClassificationSettings{Enabled: true},
		Translation:    request.TranslationSettings{Enabled: true, TargetLanguage: "fr"},
		Images:         request.ImageSettings{Enabled: true, Style: "watercolor"},
		Suggestions:    request.SuggestionSettings{Enabled: true, Count: 3},
	}
}

func kindsByPhase(evs []events.Event) map[string][]events.Kind {
	byPhase := make(map[string][]events.Kind)
	for _, ev := range evs {
		byPhase[ev.Phase()] = append(byPhase[ev.Phase()], ev.Kind())
	}
	return byPhase
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewRejectsUnknownPhase(t *testing.T) {
	cfg := testutil.NewTestPipelineConfig("classify", "daydream")

	_, err := New(cfg, testutil.NewMockBundle(), testutil.NewMockLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daydream")
}

func TestNewRejectsIncompleteBundle(t *testing.T) {
	bundle := testutil.NewMockBundle()
	bundle.Generator = nil

	_, err := New(testutil.NewTestPipelineConfig(), bundle, testutil.NewMockLogger())
	assert.Error(t, err)
}

func TestNewRejectsDuplicatePhases(t *testing.T) {
	cfg := testutil.NewTestPipelineConfig("classify", "classify")

	_, err := New(cfg, testutil.NewMockBundle(), testutil.NewMockLogger())
	assert.Error(t, err)
}

// =============================================================================
// COMPLETE RUNS
// =============================================================================

func TestRunAllPhasesComplete(t *testing.T) {
	p := newTestPipeline(t, testutil.NewMockBundle())
	req := request.New("story-1", "I open the door", request.ModeAdventure,
		request.WithSettings(fullSettings()),
	)

	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.True(t, result.Completed())
	assert.Empty(t, result.HaltedPhase)
	assert.Equal(t, []string{"classify", "narrative", "translation", "image_prompt", "suggestions"}, result.PhaseOrder)
	assert.Equal(t, "The corridor opens into a vaulted hall.", result.Narrative())

	translation, ok := result.Results().Translation()
	require.True(t, ok)
	assert.True(t, translation.Translated)
	require.NotNil(t, translation.TranslatedContent)
	assert.Equal(t, "Bonjour", *translation.TranslatedContent)
}

func TestRunEventOrdering(t *testing.T) {
	// Events arrive strictly in production order: each phase's sequence is
	// contiguous and phases appear in configured order.
	p := newTestPipeline(t, testutil.NewMockBundle())
	req := request.New("story-1", "input", request.ModeAdventure,
		request.WithSettings(fullSettings()),
	)

	collector := testutil.NewEventCollector()
	_, _, err := p.Execute(context.Background(), req, RunOptions{OnEvent: collector.Emit})
	require.NoError(t, err)

	evs := collector.Events()
	wantOrder := []string{"classify", "narrative", "translation", "image_prompt", "suggestions"}

	var phaseOrder []string
	for _, ev := range evs {
		if ev.Kind() == events.KindPhaseStarted {
			phaseOrder = append(phaseOrder, ev.Phase())
		}
	}
	assert.Equal(t, wantOrder, phaseOrder)

	for phase, kinds := range kindsByPhase(evs) {
		assert.Equal(t, events.KindPhaseStarted, kinds[0], "phase %s must start first", phase)
		assert.True(t, events.IsTerminal(evs[indexOfLast(evs, phase)]), "phase %s must end with a terminal event", phase)
	}
}

func indexOfLast(evs []events.Event, phase string) int {
	last := -1
	for i, ev := range evs {
		if ev.Phase() == phase {
			last = i
		}
	}
	return last
}

func TestRunStreamDeliversEventsAndResult(t *testing.T) {
	p := newTestPipeline(t, testutil.NewMockBundle())
	req := request.New("story-1", "input", request.ModeAdventure)

	eventCh, resultCh := p.RunStream(context.Background(), req)

	var count int
	for range eventCh {
		count++
	}

	select {
	case result := <-resultCh:
		require.NotNil(t, result)
		assert.Equal(t, StatusCompleted, result.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("result channel never delivered")
	}

	// Two events per phase on the happy path.
	assert.Equal(t, 2*5, count)
}

func TestRunDisabledFeaturesStillComplete(t *testing.T) {
	// Per-request feature flags short-circuit inside phases; the phases still
	// start, still complete, and still contribute results.
	bundle := testutil.NewMockBundle()
	p := newTestPipeline(t, bundle)
	req := request.New("story-1", "input", request.ModeAdventure) // translation and images off

	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Len(t, result.PhaseOrder, 5)

	translation, ok := result.Results().Translation()
	require.True(t, ok, "translation phase ran")
	assert.False(t, translation.Translated)
	assert.Equal(t, 0, bundle.Translator.(*testutil.MockTranslator).CallCount())
}

// =============================================================================
// FAILURE POLICY
// =============================================================================

func TestRunNonFatalErrorDegrades(t *testing.T) {
	bundle := testutil.NewMockBundle()
	bundle.Classifier.(*testutil.MockClassifier).Error = errors.New("classifier down")
	p := newTestPipeline(t, bundle)

	req := request.New("story-1", "I open the door", request.ModeAdventure)

	collector := testutil.NewEventCollector()
	result, _, err := p.Execute(context.Background(), req, RunOptions{OnEvent: collector.Emit})
	require.NoError(t, err)

	// The run still completes; classify contributed its fallback.
	assert.Equal(t, StatusCompleted, result.Status)
	classification, ok := result.Results().Classification()
	require.True(t, ok)
	assert.False(t, classification.Classified)
	assert.Equal(t, phases.InputKindAction, classification.Kind)

	assert.Equal(t, []events.Kind{
		events.KindPhaseStarted,
		events.KindPhaseError,
		events.KindPhaseCompleted,
	}, collector.KindsFor("classify"))
}

func TestRunFatalErrorHaltsPipeline(t *testing.T) {
	bundle := testutil.NewMockBundle()
	bundle.Generator.(*testutil.MockGenerator).Error = errors.New("model overloaded")
	p := newTestPipeline(t, bundle)

	req := request.New("story-1", "input", request.ModeAdventure,
		request.WithSettings(fullSettings()),
	)

	collector := testutil.NewEventCollector()
	result, _, err := p.Execute(context.Background(), req, RunOptions{OnEvent: collector.Emit})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "narrative", result.HaltedPhase)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "model overloaded")

	// Started phases contribute results; later phases never started.
	assert.Equal(t, []string{"classify", "narrative"}, result.PhaseOrder)
	assert.False(t, result.Results().Has("translation"))
	assert.False(t, result.Results().Has("suggestions"))

	// No events at all from phases after the halt.
	assert.Empty(t, collector.KindsFor("translation"))
	assert.Empty(t, collector.KindsFor("image_prompt"))
	assert.Equal(t, 0, bundle.Translator.(*testutil.MockTranslator).CallCount())

	// The narrative sequence ends with the fatal error, no completed event.
	assert.Equal(t, []events.Kind{
		events.KindPhaseStarted,
		events.KindPhaseError,
	}, collector.KindsFor("narrative"))
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestRunAbortsWhenTokenAlreadySignaled(t *testing.T) {
	token := request.NewCancelToken()
	token.Cancel()

	bundle := testutil.NewMockBundle()
	p := newTestPipeline(t, bundle)
	req := request.New("story-1", "input", request.ModeAdventure, request.WithToken(token))

	collector := testutil.NewEventCollector()
	result, _, err := p.Execute(context.Background(), req, RunOptions{OnEvent: collector.Emit})
	require.NoError(t, err)

	assert.Equal(t, StatusAborted, result.Status)
	assert.Equal(t, "classify", result.HaltedPhase)
	assert.Equal(t, []string{"classify"}, result.PhaseOrder)
	assert.Equal(t, []events.Kind{
		events.KindPhaseStarted,
		events.KindPhaseAborted,
	}, collector.KindsFor("classify"))

	// No dependency was ever invoked.
	assert.Equal(t, 0, bundle.Classifier.(*testutil.MockClassifier).CallCount())
	assert.Equal(t, 0, bundle.Generator.(*testutil.MockGenerator).CallCount())
}

func TestRunAbortsMidPipeline(t *testing.T) {
	// Cancellation fires while the narrative call is in flight: classify has
	// already completed, narrative aborts, nothing after it starts.
	token := request.NewCancelToken()

	bundle := testutil.NewMockBundle()
	bundle.Generator.(*testutil.MockGenerator).GenerateFunc = func(ctx context.Context, prompt phases.NarrativePrompt) (string, error) {
		token.Cancel()
		return "late output", nil
	}
	p := newTestPipeline(t, bundle)

	req := request.New("story-1", "input", request.ModeAdventure,
		request.WithToken(token),
		request.WithSettings(fullSettings()),
	)

	collector := testutil.NewEventCollector()
	result, _, err := p.Execute(context.Background(), req, RunOptions{OnEvent: collector.Emit})
	require.NoError(t, err)

	assert.Equal(t, StatusAborted, result.Status)
	assert.Equal(t, "narrative", result.HaltedPhase)
	assert.Equal(t, []string{"classify", "narrative"}, result.PhaseOrder)

	// The late output was discarded.
	assert.Equal(t, "", result.Narrative())

	assert.Equal(t, []events.Kind{
		events.KindPhaseStarted,
		events.KindPhaseAborted,
	}, collector.KindsFor("narrative"))
	assert.Empty(t, collector.KindsFor("translation"))
}

func TestRunContextCancellationAborts(t *testing.T) {
	// Requests built from a context abort through the same token plumbing.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, testutil.NewMockBundle())
	req := request.New("story-1", "input", request.ModeAdventure,
		request.WithToken(request.TokenFromContext(ctx)),
	)

	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, result.Status)
}

// =============================================================================
// RESULT FOLDING
// =============================================================================

func TestResultDistinguishesNoOpFromNeverRan(t *testing.T) {
	bundle := testutil.NewMockBundle()
	p := newTestPipeline(t, bundle)

	// Translation disabled: it runs and no-ops.
	req := request.New("story-1", "input", request.ModeAdventure)
	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	translation, ok := result.Results().Translation()
	assert.True(t, ok, "disabled phase still folds its no-op result")
	assert.False(t, translation.Translated)

	// Fatal halt: translation never ran.
	bundle2 := testutil.NewMockBundle()
	bundle2.Generator.(*testutil.MockGenerator).Error = errors.New("boom")
	p2 := newTestPipeline(t, bundle2)

	result2, err := p2.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result2.Results().Has("translation"))
}

func TestResultTimingFields(t *testing.T) {
	p := newTestPipeline(t, testutil.NewMockBundle())
	req := request.New("story-1", "input", request.ModeAdventure)

	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.CompletedAt.IsZero())
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
	assert.GreaterOrEqual(t, result.DurationMS, 0)
}

// =============================================================================
// CONFIGURED SUBSETS
// =============================================================================

func TestRunWithPhaseSubset(t *testing.T) {
	cfg := testutil.NewTestPipelineConfig("narrative", "suggestions")
	p, err := New(cfg, testutil.NewMockBundle(), testutil.NewMockLogger())
	require.NoError(t, err)

	req := request.New("story-1", "input", request.ModeAdventure)
	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"narrative", "suggestions"}, result.PhaseOrder)
	assert.False(t, result.Results().Has("classify"))
}

func TestRunDisabledPhaseNeverStarts(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	for _, phaseCfg := range cfg.Phases {
		if phaseCfg.Name == "classify" {
			phaseCfg.Enabled = false
		}
	}

	p, err := New(cfg, testutil.NewMockBundle(), testutil.NewMockLogger())
	require.NoError(t, err)

	req := request.New("story-1", "input", request.ModeAdventure)
	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.NotContains(t, result.PhaseOrder, "classify")
	assert.False(t, result.Results().Has("classify"))
}

func TestRunNilRequest(t *testing.T) {
	p := newTestPipeline(t, testutil.NewMockBundle())

	_, err := p.Run(context.Background(), nil)
	assert.Error(t, err)
}
