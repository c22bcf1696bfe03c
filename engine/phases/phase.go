// Package phases provides the generation phases - sequential pipeline stages
// driven by injected dependency bundles.
//
// Every phase follows the same lifecycle: emit a start event before any work
// that can suspend, short-circuit on disabled features without touching the
// network, check the cancellation token before and after the dependency call,
// and convert every dependency failure into an error event plus a usable
// fallback result. A phase never lets a failure escape as a raised error.
package phases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aventura-project/storyengine/engine/events"
	"github.com/aventura-project/storyengine/engine/observability"
	"github.com/aventura-project/storyengine/engine/request"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Phase names, in default pipeline order.
const (
	PhaseClassify    = "classify"
	PhaseNarrative   = "narrative"
	PhaseTranslation = "translation"
	PhaseImagePrompt = "image_prompt"
	PhaseSuggestions = "suggestions"
)

var tracer = otel.Tracer("storyengine/phases")

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// EmitFunc delivers one event to the consumer. Phases call it synchronously,
// so the consumer observes events in production order with no buffering.
type EmitFunc func(events.Event)

// Result is a phase-specific payload. Concrete types live next to their
// phases; the pipeline stores them without inspecting them.
type Result any

// Results is the read-only accumulator of prior phase results handed to later
// phases. Callers distinguish "phase ran and no-op'd" (present, zero-ish)
// from "phase never ran" (absent).
type Results struct {
	byPhase map[string]Result
}

// NewResults builds a Results view over completed phase results.
func NewResults(byPhase map[string]Result) Results {
	return Results{byPhase: byPhase}
}

// Get returns the result of a completed phase.
func (r Results) Get(phase string) (Result, bool) {
	res, ok := r.byPhase[phase]
	return res, ok
}

// Has reports whether the named phase ran.
func (r Results) Has(phase string) bool {
	_, ok := r.byPhase[phase]
	return ok
}

// Classification returns the classify phase result, if that phase ran.
func (r Results) Classification() (ClassifyResult, bool) {
	res, ok := r.byPhase[PhaseClassify].(ClassifyResult)
	return res, ok
}

// Narrative returns the narrative phase result, if that phase ran.
func (r Results) Narrative() (NarrativeResult, bool) {
	res, ok := r.byPhase[PhaseNarrative].(NarrativeResult)
	return res, ok
}

// Translation returns the translation phase result, if that phase ran.
func (r Results) Translation() (TranslationResult, bool) {
	res, ok := r.byPhase[PhaseTranslation].(TranslationResult)
	return res, ok
}

// Input is what a phase executes against: the caller's request plus the
// results of the phases that ran before it.
type Input struct {
	Request *request.Request
	Prior   Results
}

// Phase is one sequential stage of a generation pipeline.
//
// Execute emits progress events through emit and returns the phase's typed
// result. Failures never escape Execute: they are reported as PhaseError
// events and the returned result is the phase's neutral fallback. The
// terminal event kind, not the result payload, tells the orchestrator how
// the phase ended.
type Phase interface {
	Name() string
	Execute(ctx context.Context, in *Input, emit EmitFunc) Result
}

// ErrCancelled is the cooperative cancellation sentinel. Dependency bundles
// that detect cancellation themselves should return an error wrapping this
// (or context.Canceled); phases translate it into the aborted path.
var ErrCancelled = errors.New("generation cancelled")

// isCancellation reports whether err represents cooperative cancellation
// raised by the dependency operation itself. A deadline expiry is a failure,
// not a cancellation, and takes the error path.
func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// run drives the standard phase lifecycle shared by all phases.
//
//	skip     short-circuit check; returns the no-op result and true when the
//	         feature is disabled for this request. Must not perform I/O.
//	call     the dependency-bundle invocation.
//	fallback the neutral result returned on abort and non-fatal failure.
//
// fatal selects the error policy: fatal phases end the event sequence with
// PhaseError{Fatal: true}; non-fatal phases follow the error event with a
// synthesized PhaseCompleted carrying the fallback.
func run(
	ctx context.Context,
	name string,
	logger Logger,
	in *Input,
	emit EmitFunc,
	fatal bool,
	skip func() (Result, bool),
	call func(ctx context.Context) (Result, error),
	fallback func() Result,
) Result {
	ctx, span := tracer.Start(ctx, "phase.execute", trace.WithAttributes(
		attribute.String("aventura.phase.name", name),
		attribute.String("aventura.request.id", in.Request.RequestID),
	))
	defer span.End()

	startTime := time.Now()
	emit(events.NewPhaseStarted(name))
	logger.Info(fmt.Sprintf("%s_started", name), "request_id", in.Request.RequestID)

	finish := func(status string) {
		durationMS := int(time.Since(startTime).Milliseconds())
		span.SetAttributes(attribute.Int("duration_ms", durationMS))
		observability.RecordPhaseExecution(name, status, durationMS)
		logger.Info(fmt.Sprintf("%s_%s", name, status), "duration_ms", durationMS)
	}

	// Short-circuit before any external call.
	if result, skipped := skip(); skipped {
		span.SetStatus(codes.Ok, "skipped")
		finish("skipped")
		emit(events.NewPhaseCompleted(name, result))
		return result
	}

	token := in.Request.Token

	// Already cancelled: abort without invoking the dependency bundle.
	if token.Signaled() {
		span.SetStatus(codes.Ok, "aborted")
		finish("aborted")
		emit(events.NewPhaseAborted(name))
		return fallback()
	}

	result, err := safeCall(ctx, call)

	// The operation may have settled after the caller lost interest; its
	// output must not be acted on.
	if token.Signaled() || (err != nil && isCancellation(err)) {
		span.SetStatus(codes.Ok, "aborted")
		finish("aborted")
		emit(events.NewPhaseAborted(name))
		return fallback()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(fmt.Sprintf("%s_error", name), "error", err.Error(), "fatal", fatal)
		finish("error")
		emit(events.NewPhaseError(name, err, fatal))
		if fatal {
			return fallback()
		}
		// Degraded but usable: the pipeline continues with the fallback.
		result = fallback()
		emit(events.NewPhaseCompleted(name, result))
		return result
	}

	span.SetStatus(codes.Ok, "success")
	finish("success")
	emit(events.NewPhaseCompleted(name, result))
	return result
}

// safeCall invokes a dependency operation, converting panics into errors so
// a misbehaving bundle cannot take down the pipeline.
func safeCall(ctx context.Context, call func(ctx context.Context) (Result, error)) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dependency panic: %v", r)
		}
	}()
	return call(ctx)
}
