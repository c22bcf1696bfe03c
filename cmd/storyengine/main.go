// Storyengine CLI
//
// Runs a single generation through the pipeline, streaming phase events to
// stdout. Useful for exercising a provider endpoint and for demos without
// the desktop app.
//
// Usage:
//
//	go run ./cmd/storyengine -mock -content "I open the door"
//	go run ./cmd/storyengine -model llama3 -base-url http://localhost:11434/v1 \
//	    -content "I open the door" -lang fr
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aventura-project/storyengine/engine/config"
	"github.com/aventura-project/storyengine/engine/observability"
	"github.com/aventura-project/storyengine/engine/phases"
	"github.com/aventura-project/storyengine/engine/pipeline"
	"github.com/aventura-project/storyengine/engine/request"
	"github.com/aventura-project/storyengine/engine/testutil"
	"github.com/aventura-project/storyengine/providers/openai"
)

// stdLogger implements phases.Logger using standard library log.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Bind(fields ...any) phases.Logger {
	return l
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "pipeline config YAML (empty uses defaults)")
	content := flag.String("content", "I open the door", "player input")
	mode := flag.String("mode", "adventure", "generation mode: adventure or creative")
	lang := flag.String("lang", "", "translate the passage into this language")
	style := flag.String("style", "", "generate an image prompt in this style")
	mock := flag.Bool("mock", false, "use mock providers instead of an endpoint")
	baseURL := flag.String("base-url", "", "OpenAI-compatible API root")
	model := flag.String("model", "gpt-4o-mini", "narrator model")
	utilityModel := flag.String("utility-model", "", "utility model (defaults to narrator model)")
	otlpEndpoint := flag.String("otlp", "", "OTLP trace collector endpoint (empty disables tracing)")
	flag.Parse()

	logger := &stdLogger{}

	shutdownTracer, err := observability.InitTracer("storyengine", *otlpEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer_shutdown_failed", "error", err.Error())
		}
	}()

	cfg := config.DefaultPipelineConfig()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	var bundle *phases.Bundle
	if *mock {
		bundle = testutil.NewMockBundle()
		logger.Info("providers_configured", "provider", "mock")
	} else {
		client, err := openai.NewClient(openai.Config{
			BaseURL:       *baseURL,
			APIKey:        os.Getenv("OPENAI_API_KEY"),
			NarratorModel: *model,
			UtilityModel:  *utilityModel,
		})
		if err != nil {
			log.Fatalf("Failed to configure provider: %v", err)
		}
		bundle = client.Bundle()
		logger.Info("providers_configured", "provider", "openai", "model", *model)
	}

	p, err := pipeline.New(cfg, bundle, logger)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	settings := request.Settings{
		Classification: request.ClassificationSettings{Enabled: true},
		Suggestions:    request.SuggestionSettings{Enabled: true, Count: 3},
	}
	if *lang != "" {
		settings.Translation = request.TranslationSettings{Enabled: true, TargetLanguage: *lang}
	}
	if *style != "" {
		settings.Images = request.ImageSettings{Enabled: true, Style: *style}
	}

	token := request.NewCancelToken()
	req := request.New("story-cli", *content, request.Mode(*mode),
		request.WithToken(token),
		request.WithSettings(settings),
	)

	// Ctrl+C cancels the generation cooperatively
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("cancel_requested")
		token.Cancel()
	}()

	logger.Info("generation_starting", "request_id", req.RequestID, "mode", req.Mode)

	start := time.Now()
	eventCh, resultCh := p.RunStream(context.Background(), req)

	for ev := range eventCh {
		fmt.Printf("%-14s %s\n", ev.Kind(), ev.Phase())
	}

	result := <-resultCh
	logger.Info("generation_finished",
		"status", result.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))

	if !result.Completed() {
		os.Exit(1)
	}
}
