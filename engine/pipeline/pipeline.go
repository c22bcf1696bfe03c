// Package pipeline provides the Pipeline - the generation orchestration
// engine.
//
// A Pipeline runs an ordered set of phases over one generation request,
// forwards every phase's events into a single ordered stream, folds phase
// results into an aggregate Result, and enforces the cancellation and
// failure policy uniformly: a non-fatal phase error degrades the run, a
// fatal error or an observed cancellation halts it.
//
// One Pipeline instance serves many concurrent requests; it holds no
// per-request state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aventura-project/storyengine/engine/config"
	"github.com/aventura-project/storyengine/engine/events"
	"github.com/aventura-project/storyengine/engine/observability"
	"github.com/aventura-project/storyengine/engine/phases"
	"github.com/aventura-project/storyengine/engine/request"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Logger type alias for convenience.
type Logger = phases.Logger

var tracer = otel.Tracer("storyengine/pipeline")

// eventsPerPhase bounds how many events one phase invocation can emit:
// start, at most one error, and one terminal event.
const eventsPerPhase = 3

// RunOptions configures how the pipeline runs.
type RunOptions struct {
	// Stream: deliver events to the returned channel as they are emitted.
	Stream bool

	// OnEvent, when set, observes every event synchronously in emission
	// order. Used to bridge events onto an application bus.
	OnEvent func(events.Event)
}

// Pipeline executes generation requests against a configured phase order.
type Pipeline struct {
	Config *config.PipelineConfig
	Bundle *phases.Bundle
	Logger Logger

	phases []phases.Phase
}

// New creates a Pipeline from configuration and a dependency bundle.
func New(cfg *config.PipelineConfig, bundle *phases.Bundle, logger Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		Config: cfg,
		Bundle: bundle,
		Logger: logger.Bind("pipeline", cfg.Name),
	}
	if err := p.buildPhases(); err != nil {
		return nil, err
	}
	return p, nil
}

// buildPhases constructs phase instances for every enabled phase, in order.
func (p *Pipeline) buildPhases() error {
	for _, phaseCfg := range p.Config.Phases {
		if !phaseCfg.Enabled {
			continue
		}

		var ph phases.Phase
		switch phaseCfg.Name {
		case phases.PhaseClassify:
			ph = phases.NewClassifyPhase(p.Bundle.Classifier, p.Logger)
		case phases.PhaseNarrative:
			ph = phases.NewNarrativePhase(p.Bundle.Generator, p.Logger)
		case phases.PhaseTranslation:
			ph = phases.NewTranslationPhase(p.Bundle.Translator, p.Logger)
		case phases.PhaseImagePrompt:
			ph = phases.NewImagePromptPhase(p.Bundle.Prompter, p.Logger)
		case phases.PhaseSuggestions:
			ph = phases.NewSuggestionsPhase(p.Bundle.Suggester, p.Logger)
		default:
			return fmt.Errorf("unknown phase: %s", phaseCfg.Name)
		}
		p.phases = append(p.phases, ph)
	}

	p.Logger.Info("pipeline_phases_built",
		"phase_count", len(p.phases),
		"phases", p.Config.GetPhaseOrder(),
	)
	return nil
}

// =============================================================================
// UNIFIED EXECUTION
// =============================================================================

// Execute runs the pipeline over one request.
//
// Events are forwarded in emission order: to opts.OnEvent synchronously, and
// to the returned channel when opts.Stream is set. The channel is buffered
// for the whole run and closed before Execute returns; use RunStream to
// consume events while the run is still in flight.
func (p *Pipeline) Execute(ctx context.Context, req *request.Request, opts RunOptions) (*Result, <-chan events.Event, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("nil generation request")
	}

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("aventura.pipeline.name", p.Config.Name),
		attribute.String("aventura.request.id", req.RequestID),
	))
	defer span.End()

	var eventChan chan events.Event
	if opts.Stream {
		eventChan = make(chan events.Event, eventsPerPhase*len(p.phases)+1)
	}

	startTime := time.Now()
	p.Logger.Info("pipeline_started",
		"request_id", req.RequestID,
		"story_id", req.StoryID,
		"mode", string(req.Mode),
		"phase_order", p.Config.GetPhaseOrder(),
	)

	result := p.runSequentialCore(ctx, req, opts, eventChan)

	if eventChan != nil {
		close(eventChan)
	}

	result.finish()
	durationMS := int(time.Since(startTime).Milliseconds())
	observability.RecordPipelineExecution(p.Config.Name, string(result.Status), durationMS)
	span.SetAttributes(
		attribute.String("aventura.pipeline.status", string(result.Status)),
		attribute.Int("duration_ms", durationMS),
	)

	p.Logger.Info("pipeline_completed",
		"request_id", req.RequestID,
		"status", string(result.Status),
		"phases_run", result.PhaseOrder,
		"halted_phase", result.HaltedPhase,
		"duration_ms", durationMS,
	)

	return result, eventChan, nil
}

// runSequentialCore runs phases one at a time in configured order.
func (p *Pipeline) runSequentialCore(ctx context.Context, req *request.Request, opts RunOptions, eventChan chan events.Event) *Result {
	result := newResult(req.RequestID, p.Config.Name)

	// Tie the context to the request token so in-flight dependency calls
	// observe a UI cancel, not just the checked points.
	ctx, cancel := request.Context(ctx, req.Token)
	defer cancel()

	for _, ph := range p.phases {
		recorder := newTerminalRecorder()
		emit := func(ev events.Event) {
			recorder.observe(ev)
			if opts.OnEvent != nil {
				opts.OnEvent(ev)
			}
			if eventChan != nil {
				eventChan <- ev
			}
		}

		input := &phases.Input{
			Request: req,
			Prior:   phases.NewResults(result.PhaseResults),
		}

		phaseCtx, cancelPhase := p.phaseContext(ctx, ph.Name())
		res := ph.Execute(phaseCtx, input, emit)
		cancelPhase()

		// Every started phase contributes its result, fallbacks included.
		result.fold(ph.Name(), res)

		switch recorder.terminal() {
		case terminalAborted:
			result.Status = StatusAborted
			result.HaltedPhase = ph.Name()
			p.Logger.Info("pipeline_aborted",
				"request_id", req.RequestID,
				"phase", ph.Name(),
			)
			return result
		case terminalFatal:
			result.Status = StatusFailed
			result.HaltedPhase = ph.Name()
			result.Err = recorder.err
			p.Logger.Error("pipeline_phase_fatal",
				"request_id", req.RequestID,
				"phase", ph.Name(),
				"error", recorder.err.Error(),
			)
			return result
		case terminalCompleted:
			// Continue to the next phase.
		default:
			// A phase that returns without a terminal event breaks the
			// contract; treat it as fatal rather than carry on with an
			// undefined outcome.
			result.Status = StatusFailed
			result.HaltedPhase = ph.Name()
			result.Err = fmt.Errorf("phase '%s' ended without a terminal event", ph.Name())
			p.Logger.Error("pipeline_phase_no_terminal",
				"request_id", req.RequestID,
				"phase", ph.Name(),
			)
			return result
		}
	}

	return result
}

// phaseContext applies the configured per-phase deadline.
func (p *Pipeline) phaseContext(ctx context.Context, phase string) (context.Context, context.CancelFunc) {
	timeout := time.Duration(p.Config.PhaseTimeoutSeconds(phase)) * time.Second
	return context.WithTimeout(ctx, timeout)
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// Run runs the pipeline and returns the aggregate result.
func (p *Pipeline) Run(ctx context.Context, req *request.Request) (*Result, error) {
	result, _, err := p.Execute(ctx, req, RunOptions{})
	return result, err
}

// RunStream runs the pipeline in the background and delivers events while
// the run is in flight. The events channel is closed when the run ends; the
// result channel then yields the aggregate result exactly once.
func (p *Pipeline) RunStream(ctx context.Context, req *request.Request) (<-chan events.Event, <-chan *Result) {
	eventChan := make(chan events.Event, eventsPerPhase*len(p.phases)+1)
	resultChan := make(chan *Result, 1)

	go func() {
		defer close(resultChan)
		result, _, err := p.Execute(ctx, req, RunOptions{
			OnEvent: func(ev events.Event) { eventChan <- ev },
		})
		close(eventChan)
		if err != nil {
			p.Logger.Error("pipeline_stream_error", "error", err.Error())
			return
		}
		resultChan <- result
	}()

	return eventChan, resultChan
}

// =============================================================================
// TERMINAL EVENT TRACKING
// =============================================================================

type terminalKind int

const (
	terminalNone terminalKind = iota
	terminalCompleted
	terminalAborted
	terminalFatal
)

// terminalRecorder watches a phase's event stream and remembers how it
// ended. Phases emit their terminal event synchronously before returning,
// so by the time Execute returns the recorder has the answer.
type terminalRecorder struct {
	kind terminalKind
	err  error
}

func newTerminalRecorder() *terminalRecorder {
	return &terminalRecorder{kind: terminalNone}
}

func (r *terminalRecorder) observe(ev events.Event) {
	switch e := ev.(type) {
	case events.PhaseCompleted:
		r.kind = terminalCompleted
	case events.PhaseAborted:
		r.kind = terminalAborted
	case events.PhaseError:
		if e.Fatal {
			r.kind = terminalFatal
			r.err = e.Err
		}
	}
}

func (r *terminalRecorder) terminal() terminalKind { return r.kind }
