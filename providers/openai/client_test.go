package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aventura-project/storyengine/engine/phases"
	"github.com/aventura-project/storyengine/engine/request"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeServer returns a chat-completions server answering with content, and a
// pointer to the last decoded request body.
func fakeServer(t *testing.T, content string) (*httptest.Server, *chatRequest) {
	t.Helper()
	var lastRequest chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequest))

		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	return server, &lastRequest
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:       baseURL,
		APIKey:        "test-key",
		NarratorModel: "narrator-model",
		UtilityModel:  "utility-model",
	})
	require.NoError(t, err)
	return client
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestNewClientRequiresNarratorModel(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestNewClientDefaultsUtilityModel(t *testing.T) {
	server, lastRequest := fakeServer(t, "action")
	client, err := NewClient(Config{BaseURL: server.URL, NarratorModel: "solo-model"})
	require.NoError(t, err)

	_, err = client.Classify(context.Background(), "I open the door")
	require.NoError(t, err)
	assert.Equal(t, "solo-model", lastRequest.Model)
}

func TestBundleIsComplete(t *testing.T) {
	server, _ := fakeServer(t, "ok")
	client := testClient(t, server.URL)
	assert.NoError(t, client.Bundle().Validate())
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestClassifyParsesKind(t *testing.T) {
	server, lastRequest := fakeServer(t, "Speech")
	client := testClient(t, server.URL)

	kind, err := client.Classify(context.Background(), `"Who goes there?"`)
	require.NoError(t, err)
	assert.Equal(t, phases.InputKindSpeech, kind)
	assert.Equal(t, "utility-model", lastRequest.Model)
}

func TestClassifyRejectsGarbage(t *testing.T) {
	server, _ := fakeServer(t, "a limerick")
	client := testClient(t, server.URL)

	_, err := client.Classify(context.Background(), "input")
	assert.Error(t, err)
}

func TestGenerateUsesNarratorModel(t *testing.T) {
	server, lastRequest := fakeServer(t, "You push the door open.")
	client := testClient(t, server.URL)

	content, err := client.Generate(context.Background(), phases.NarrativePrompt{
		Content:      "I open the door",
		Kind:         phases.InputKindAction,
		Mode:         request.ModeAdventure,
		StoryContext: "A locked cellar.",
	})
	require.NoError(t, err)

	assert.Equal(t, "You push the door open.", content)
	assert.Equal(t, "narrator-model", lastRequest.Model)

	// System prompt, story context, then the framed player turn.
	require.Len(t, lastRequest.Messages, 3)
	assert.Equal(t, "system", lastRequest.Messages[0].Role)
	assert.Contains(t, lastRequest.Messages[1].Content, "A locked cellar.")
	assert.Contains(t, lastRequest.Messages[2].Content, "I open the door")
}

func TestTranslate(t *testing.T) {
	server, lastRequest := fakeServer(t, "Bonjour")
	client := testClient(t, server.URL)

	translated, err := client.Translate(context.Background(), "Hello", "French")
	require.NoError(t, err)

	assert.Equal(t, "Bonjour", translated)
	assert.Contains(t, lastRequest.Messages[0].Content, "French")
	assert.Equal(t, "Hello", lastRequest.Messages[1].Content)
}

func TestSuggestParsesJSONArray(t *testing.T) {
	server, _ := fakeServer(t, "```json\n[\"Open the door\", \"Turn back\"]\n```")
	client := testClient(t, server.URL)

	suggestions, err := client.Suggest(context.Background(), "A vaulted hall.", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Open the door", "Turn back"}, suggestions)
}

func TestSuggestRejectsNonArrayOutput(t *testing.T) {
	server, _ := fakeServer(t, "I cannot help with that.")
	client := testClient(t, server.URL)

	_, err := client.Suggest(context.Background(), "passage", 3)
	assert.Error(t, err)
}

func TestImagePromptIncludesStyle(t *testing.T) {
	server, lastRequest := fakeServer(t, "a vaulted stone hall, watercolor")
	client := testClient(t, server.URL)

	prompt, err := client.ImagePrompt(context.Background(), "A vaulted hall.", "watercolor")
	require.NoError(t, err)

	assert.Equal(t, "a vaulted stone hall, watercolor", prompt)
	assert.Contains(t, lastRequest.Messages[1].Content, "watercolor")
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

func TestCompleteSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit", "message": "slow down"},
		})
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL)
	_, err := client.Translate(context.Background(), "Hello", "fr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func TestCompleteSurfacesEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL)
	_, err := client.Translate(context.Background(), "Hello", "fr")
	assert.Error(t, err)
}

func TestCompleteHonorsContextCancellation(t *testing.T) {
	server, _ := fakeServer(t, "never read")
	client := testClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Translate(ctx, "Hello", "fr")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseSuggestions(t *testing.T) {
	suggestions, err := parseSuggestions(`Here you go: ["a", " b ", ""] done`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, suggestions)

	_, err = parseSuggestions("no array here")
	assert.Error(t, err)
}
