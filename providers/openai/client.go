// Package openai provides a model provider backed by an OpenAI-compatible
// chat completions endpoint. One Client implements every provider interface
// the generation phases depend on, so a single configured endpoint can serve
// the whole pipeline.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aventura-project/storyengine/engine/observability"
	"github.com/aventura-project/storyengine/engine/phases"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second

	providerName = "openai"
)

// Config configures the Client.
type Config struct {
	// BaseURL is the API root, without a trailing slash.
	// Any OpenAI-compatible server works (OpenAI, Ollama, vLLM, llama.cpp).
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token. Optional for local servers.
	APIKey string `yaml:"api_key"`

	// NarratorModel serves narrative generation.
	NarratorModel string `yaml:"narrator_model"`

	// UtilityModel serves classification, translation, image prompts and
	// suggestions. Falls back to NarratorModel when empty.
	UtilityModel string `yaml:"utility_model"`

	// Timeout bounds each HTTP call.
	Timeout time.Duration `yaml:"timeout"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL       string
	apiKey        string
	narratorModel string
	utilityModel  string
	httpClient    *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.NarratorModel == "" {
		return nil, fmt.Errorf("openai: narrator model is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	utilityModel := cfg.UtilityModel
	if utilityModel == "" {
		utilityModel = cfg.NarratorModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		narratorModel: cfg.NarratorModel,
		utilityModel:  utilityModel,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

// Bundle returns a provider bundle with every phase backed by this client.
func (c *Client) Bundle() *phases.Bundle {
	return &phases.Bundle{
		Classifier: c,
		Generator:  c,
		Translator: c,
		Prompter:   c,
		Suggester:  c,
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// =============================================================================
// TRANSPORT
// =============================================================================

// complete sends one chat completion request and returns the first choice.
func (c *Client) complete(ctx context.Context, operation string, req chatRequest) (string, error) {
	start := time.Now()
	content, err := c.doComplete(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordProviderCall(providerName, operation, status, int(time.Since(start).Milliseconds()))

	return content, err
}

func (c *Client) doComplete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		}
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("provider error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
