package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// maxSummaryLength bounds the enhanced summary shown to drivers, in characters
const maxSummaryLength = 120

// messageEnhancer implements the MessageEnhancer interface using OpenAI
type messageEnhancer struct {
	client *openai.Client
	model  string
}

// NewMessageEnhancer creates a MessageEnhancer backed by the OpenAI API
func NewMessageEnhancer(apiKey, model string) MessageEnhancer {
	if apiKey == "" {
		return &messageEnhancer{client: nil, model: model}
	}
	return &messageEnhancer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewMessageEnhancerWithClient creates a MessageEnhancer around a preconfigured client
func NewMessageEnhancerWithClient(client *openai.Client, model string) MessageEnhancer {
	return &messageEnhancer{client: client, model: model}
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// Enhance asks the model for a one-line notice describing the event
func (m *messageEnhancer) Enhance(ctx context.Context, event AlertEvent) (string, error) {
	if m.client == nil {
		return "", errors.New("OpenAI client not initialized - missing API key")
	}

	location := event.Location
	if location == "" {
		location = "not provided"
	}
	userPrompt := fmt.Sprintf("Hazard type: %s\nLocation: %s\nReported: %s",
		event.Type, location, event.ReportedAt.Format(time.RFC3339))

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &AlertSummarySchema,
		},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI API")
	}

	var parsed summaryResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse OpenAI JSON response: %w", err)
	}

	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		return "", errors.New("OpenAI returned an empty summary")
	}
	return truncateSummary(summary), nil
}

// truncateSummary cuts s to maxSummaryLength characters on a rune boundary
func truncateSummary(s string) string {
	if utf8.RuneCountInString(s) <= maxSummaryLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxSummaryLength-3]) + "..."
}

// HealthCheck verifies OpenAI API connectivity
func (m *messageEnhancer) HealthCheck(ctx context.Context) error {
	if m.client == nil {
		return errors.New("OpenAI client not initialized")
	}

	_, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Test",
			},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("OpenAI API health check failed: %w", err)
	}

	return nil
}
