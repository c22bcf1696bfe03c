package eventbus

import (
	"context"
	"fmt"

	"github.com/aventura-project/storyengine/engine/events"
	"github.com/aventura-project/storyengine/engine/pipeline"
	"github.com/aventura-project/storyengine/engine/request"
	"github.com/aventura-project/storyengine/engine/sessions"
)

// Publisher mirrors a generation's lifecycle onto the bus, so UI status,
// telemetry and sync subscribers follow runs without holding a pipeline
// reference.
type Publisher struct {
	bus Bus
}

// NewPublisher creates a Publisher on the given bus.
func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus}
}

// Started announces that a request entered the pipeline.
func (p *Publisher) Started(ctx context.Context, req *request.Request) {
	_ = p.bus.Publish(ctx, NewGenerationStarted(req))
}

// Progress forwards one pipeline event. Use as the pipeline's OnEvent hook,
// or feed it from a streamed event channel.
func (p *Publisher) Progress(ctx context.Context, requestID string, ev events.Event) {
	_ = p.bus.Publish(ctx, BridgeEvent(requestID, ev))
}

// Finished announces a run's terminal outcome.
func (p *Publisher) Finished(ctx context.Context, result *pipeline.Result) {
	msg := &GenerationFinished{
		RequestID:  result.RequestID,
		Status:     string(result.Status),
		DurationMS: result.DurationMS,
	}
	if result.Err != nil {
		errText := result.Err.Error()
		msg.Error = &errText
	}
	_ = p.bus.Publish(ctx, msg)
}

// Run starts a generation through the manager and mirrors its whole
// lifecycle onto the bus. It blocks until the run ends and returns the
// aggregate result.
func (p *Publisher) Run(ctx context.Context, manager *sessions.Manager, req *request.Request) (*pipeline.Result, error) {
	gen, eventCh, err := manager.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	p.Started(ctx, req)
	for ev := range eventCh {
		p.Progress(ctx, gen.ID, ev)
	}

	result := gen.Await()
	if result != nil {
		p.Finished(ctx, result)
	}
	return result, nil
}

// RegisterSessionHandlers wires the control surface: CancelGeneration
// commands and GetGenerationStatus queries are answered by the manager.
func RegisterSessionHandlers(bus Bus, manager *sessions.Manager) error {
	if err := bus.RegisterHandler("CancelGeneration", func(ctx context.Context, msg Message) (any, error) {
		return nil, manager.Cancel(msg.(*CancelGeneration).RequestID)
	}); err != nil {
		return err
	}

	return bus.RegisterHandler("GetGenerationStatus", func(ctx context.Context, msg Message) (any, error) {
		id := msg.(*GetGenerationStatus).RequestID
		state, ok := manager.StateOf(id)
		if !ok {
			return nil, fmt.Errorf("unknown generation: %s", id)
		}
		return state, nil
	})
}
