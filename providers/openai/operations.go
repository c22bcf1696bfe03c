package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aventura-project/storyengine/engine/phases"
	"github.com/aventura-project/storyengine/engine/request"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

const classifySystemPrompt = `You classify a player's input for an interactive story.
Respond with exactly one word:
  action - the player describes something their character does
  speech - the player says something in dialogue
  story  - the player writes narration or scene description
No punctuation, no explanation.`

// Classify implements phases.Classifier.
func (c *Client) Classify(ctx context.Context, content string) (phases.InputKind, error) {
	raw, err := c.complete(ctx, "classify", chatRequest{
		Model: c.utilityModel,
		Messages: []chatMessage{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: content},
		},
		Temperature: 0,
		MaxTokens:   4,
	})
	if err != nil {
		return "", err
	}

	switch phases.InputKind(strings.ToLower(strings.TrimSpace(raw))) {
	case phases.InputKindAction:
		return phases.InputKindAction, nil
	case phases.InputKindSpeech:
		return phases.InputKindSpeech, nil
	case phases.InputKindStory:
		return phases.InputKindStory, nil
	default:
		return "", fmt.Errorf("unrecognized classification: %q", raw)
	}
}

// =============================================================================
// NARRATIVE GENERATION
// =============================================================================

const adventureSystemPrompt = `You are the narrator of an interactive adventure.
Continue the story from the player's input. Write in second person, present
tense. Keep the passage to a few paragraphs and end at a natural decision
point. Never speak for the player or decide their next action.`

const creativeSystemPrompt = `You are a co-writer helping the author continue
their story. Match the established tone, tense and point of view. Continue
from the author's text with a few paragraphs that move the story forward.`

// Generate implements phases.NarrativeGenerator.
func (c *Client) Generate(ctx context.Context, prompt phases.NarrativePrompt) (string, error) {
	systemPrompt := adventureSystemPrompt
	if prompt.Mode == request.ModeCreative {
		systemPrompt = creativeSystemPrompt
	}

	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	if prompt.StoryContext != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: "Story so far:\n" + prompt.StoryContext,
		})
	}
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: userTurn(prompt),
	})

	return c.complete(ctx, "generate", chatRequest{
		Model:       c.narratorModel,
		Messages:    messages,
		Temperature: 0.8,
	})
}

// userTurn frames the player input according to its classified kind.
func userTurn(prompt phases.NarrativePrompt) string {
	switch prompt.Kind {
	case phases.InputKindSpeech:
		return fmt.Sprintf("The player says: %q", prompt.Content)
	case phases.InputKindStory:
		return prompt.Content
	default:
		return fmt.Sprintf("The player does the following: %s", prompt.Content)
	}
}

// =============================================================================
// TRANSLATION
// =============================================================================

// Translate implements phases.Translator.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	systemPrompt := fmt.Sprintf(
		"Translate the user's text into %s. Preserve tone, formatting and paragraph breaks. Respond with the translation only.",
		targetLanguage,
	)

	return c.complete(ctx, "translate", chatRequest{
		Model: c.utilityModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.2,
	})
}

// =============================================================================
// IMAGE PROMPTS
// =============================================================================

const imagePromptSystemPrompt = `You write prompts for a text-to-image model.
Given a story passage, describe its key visual scene in one dense sentence:
subjects, setting, lighting, mood. No camera jargon, no negative prompts.
Respond with the prompt only.`

// ImagePrompt implements phases.ImagePrompter.
func (c *Client) ImagePrompt(ctx context.Context, passage, style string) (string, error) {
	userContent := passage
	if style != "" {
		userContent = fmt.Sprintf("Style: %s\n\nPassage:\n%s", style, passage)
	}

	return c.complete(ctx, "image_prompt", chatRequest{
		Model: c.utilityModel,
		Messages: []chatMessage{
			{Role: "system", Content: imagePromptSystemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.6,
		MaxTokens:   200,
	})
}

// =============================================================================
// ACTION SUGGESTIONS
// =============================================================================

const suggestSystemPrompt = `You suggest possible next actions for the player
of an interactive story. Given the latest passage, respond with a JSON array
of short imperative phrases, nothing else. Example:
["Open the door", "Listen at the wall", "Turn back"]`

// Suggest implements phases.ActionSuggester.
func (c *Client) Suggest(ctx context.Context, passage string, count int) ([]string, error) {
	raw, err := c.complete(ctx, "suggest", chatRequest{
		Model: c.utilityModel,
		Messages: []chatMessage{
			{Role: "system", Content: suggestSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Suggest %d actions for this passage:\n\n%s", count, passage)},
		},
		Temperature: 0.9,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, err
	}

	suggestions, err := parseSuggestions(raw)
	if err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("provider returned no suggestions")
	}
	return suggestions, nil
}

// parseSuggestions extracts the JSON array from the model output. Models
// sometimes wrap it in code fences or prose, so scan for the brackets.
func parseSuggestions(raw string) ([]string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in suggestions output")
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &suggestions); err != nil {
		return nil, fmt.Errorf("error parsing suggestions: %w", err)
	}

	cleaned := suggestions[:0]
	for _, s := range suggestions {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned, nil
}

// Interface checks.
var (
	_ phases.Classifier         = (*Client)(nil)
	_ phases.NarrativeGenerator = (*Client)(nil)
	_ phases.Translator         = (*Client)(nil)
	_ phases.ImagePrompter      = (*Client)(nil)
	_ phases.ActionSuggester    = (*Client)(nil)
)
