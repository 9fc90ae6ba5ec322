package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *openai.Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"
	return openai.NewClientWithConfig(config)
}

func chatResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func TestMessageEnhancer_Enhance(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(`{"summary":"Accident reported ahead, slow down."}`))
	})

	enhancer := NewMessageEnhancerWithClient(client, "gpt-4o-mini")
	event := AlertEvent{
		ID:         "e1",
		Type:       "accident",
		Location:   "Main St",
		ReportedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	summary, err := enhancer.Enhance(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "Accident reported ahead, slow down.", summary)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, captured.Messages[0].Role)
	assert.Equal(t, "json_schema", captured.ResponseFormat.Type)
	assert.Contains(t, captured.Messages[1].Content, "Hazard type: accident")
	assert.Contains(t, captured.Messages[1].Content, "Location: Main St")
}

func TestMessageEnhancer_TruncatesLongSummary(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	content, _ := json.Marshal(summaryResponse{Summary: string(long)})

	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(string(content)))
	})

	summary, err := NewMessageEnhancerWithClient(client, "gpt-4o-mini").Enhance(context.Background(), AlertEvent{Type: "debris"})
	require.NoError(t, err)
	assert.Len(t, summary, maxSummaryLength)
}

func TestTruncateSummary(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"short", "Crash ahead", 11},
		{"exact", strings.Repeat("a", maxSummaryLength), maxSummaryLength},
		{"ascii", strings.Repeat("a", 200), maxSummaryLength},
		{"multibyte", strings.Repeat("é", 200), maxSummaryLength},
		{"mixed", "a" + strings.Repeat("→", 150), maxSummaryLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateSummary(tt.input)
			assert.True(t, utf8.ValidString(got), "Truncation must not split a character")
			assert.Equal(t, tt.want, utf8.RuneCountInString(got))
			if tt.want < utf8.RuneCountInString(tt.input) {
				assert.True(t, strings.HasSuffix(got, "..."))
			}
		})
	}
}

func TestMessageEnhancer_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewMessageEnhancer("", "gpt-4o-mini").Enhance(ctx, AlertEvent{Type: "accident"})
	assert.Error(t, err, "Should return error with empty API key")
	assert.Error(t, NewMessageEnhancer("", "gpt-4o-mini").HealthCheck(ctx))

	failing := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})
	_, err = NewMessageEnhancerWithClient(failing, "gpt-4o-mini").Enhance(ctx, AlertEvent{Type: "accident"})
	assert.Error(t, err)

	garbage := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("not json"))
	})
	_, err = NewMessageEnhancerWithClient(garbage, "gpt-4o-mini").Enhance(ctx, AlertEvent{Type: "accident"})
	assert.Error(t, err)

	empty := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(`{"summary":"   "}`))
	})
	_, err = NewMessageEnhancerWithClient(empty, "gpt-4o-mini").Enhance(ctx, AlertEvent{Type: "accident"})
	assert.Error(t, err)
}

// MockMessageEnhancer is a mock implementation of MessageEnhancer
type MockMessageEnhancer struct {
	mock.Mock
}

func (m *MockMessageEnhancer) Enhance(ctx context.Context, event AlertEvent) (string, error) {
	args := m.Called(ctx, event)
	return args.String(0), args.Error(1)
}

func (m *MockMessageEnhancer) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type memorySummaryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (c *memorySummaryCache) SetSummary(hash, summary string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = summary
	return nil
}

func (c *memorySummaryCache) GetSummary(hash string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[hash]
	return s, ok, nil
}

func TestCachedMessageEnhancer(t *testing.T) {
	ctx := context.Background()
	inner := &MockMessageEnhancer{}
	event := AlertEvent{Type: "accident", Location: "Main St", Latitude: 1, Longitude: 2}
	inner.On("Enhance", ctx, event).Return("Accident ahead.", nil).Once()

	cached := NewCachedMessageEnhancer(inner, &memorySummaryCache{entries: map[string]string{}})

	first, err := cached.Enhance(ctx, event)
	require.NoError(t, err)
	second, err := cached.Enhance(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, "Accident ahead.", first)
	assert.Equal(t, first, second)
	inner.AssertNumberOfCalls(t, "Enhance", 1)
}

func TestCachedMessageEnhancer_DoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	inner := &MockMessageEnhancer{}
	event := AlertEvent{Type: "roadblock"}
	inner.On("Enhance", ctx, event).Return("", errors.New("quota exceeded"))
	inner.On("HealthCheck", ctx).Return(nil)

	cache := &memorySummaryCache{entries: map[string]string{}}
	cached := NewCachedMessageEnhancer(inner, cache)

	_, err := cached.Enhance(ctx, event)
	assert.Error(t, err)
	assert.Empty(t, cache.entries)
	assert.NoError(t, cached.HealthCheck(ctx))
}
