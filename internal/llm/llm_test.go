package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	t.Run("formats with and without type", func(t *testing.T) {
		withType := &APIError{Provider: "openai", StatusCode: 400, Message: "bad request", Type: "invalid_request_error"}
		assert.Contains(t, withType.Error(), "type invalid_request_error")

		plain := &APIError{Provider: "anthropic", StatusCode: 401, Message: "unauthorized"}
		assert.Contains(t, plain.Error(), "status 401")
	})

	t.Run("transient classification", func(t *testing.T) {
		tests := []struct {
			status    int
			transient bool
		}{
			{0, true},
			{429, true},
			{500, true},
			{503, true},
			{400, false},
			{401, false},
			{404, false},
		}
		for _, tt := range tests {
			err := &APIError{StatusCode: tt.status}
			assert.Equal(t, tt.transient, err.IsTransient(), "status %d", tt.status)
		}
	})
}

func TestNewCompleter(t *testing.T) {
	t.Run("creates openai provider", func(t *testing.T) {
		c, err := NewCompleter(FactoryConfig{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "k"}})
		require.NoError(t, err)
		assert.Equal(t, "openai", c.Provider())
		assert.Equal(t, defaultOpenAIModel, c.Model())
	})

	t.Run("creates anthropic provider", func(t *testing.T) {
		c, err := NewCompleter(FactoryConfig{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "k", Model: "claude-sonnet-4-20250514"}})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", c.Provider())
		assert.Equal(t, "claude-sonnet-4-20250514", c.Model())
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		_, err := NewCompleter(FactoryConfig{Provider: "cohere"})
		assert.Error(t, err)
	})
}

func TestOpenAIProvider_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("returns message content and honors model override", func(t *testing.T) {
		var gotReq chatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			_ = json.NewEncoder(w).Encode(chatResponse{
				Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "generated text"}}},
			})
		}))
		defer server.Close()

		p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL}, 0.3, 5*time.Second, 0)

		text, err := p.Complete(ctx, CompletionRequest{
			Model:        "gpt-4.1-mini",
			SystemPrompt: "system",
			UserPayload:  "user",
			MaxTokens:    256,
		})
		require.NoError(t, err)
		assert.Equal(t, "generated text", text)
		assert.Equal(t, "gpt-4.1-mini", gotReq.Model)
		assert.Equal(t, 256, gotReq.MaxTokens)
		require.Len(t, gotReq.Messages, 2)
		assert.Equal(t, "system", gotReq.Messages[0].Role)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(chatResponse{
				Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}},
			})
		}))
		defer server.Close()

		p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, 0, 5*time.Second, 2)
		p.retryDelay = time.Millisecond

		text, err := p.Complete(ctx, CompletionRequest{UserPayload: "u"})
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, 0, 5*time.Second, 3)
		p.retryDelay = time.Millisecond

		_, err := p.Complete(ctx, CompletionRequest{UserPayload: "u"})
		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "bad key", apiErr.Message)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(chatResponse{})
		}))
		defer server.Close()

		p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, 0, 5*time.Second, 0)
		_, err := p.Complete(ctx, CompletionRequest{UserPayload: "u"})
		assert.ErrorContains(t, err, "empty choices")
	})
}

func TestAnthropicProvider_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("concatenates text blocks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "key", r.Header.Get("x-api-key"))
			assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
			_ = json.NewEncoder(w).Encode(messagesResponse{
				Content: []contentBlock{
					{Type: "text", Text: "part one"},
					{Type: "tool_use"},
					{Type: "text", Text: " part two"},
				},
			})
		}))
		defer server.Close()

		p := NewAnthropicProvider(AnthropicConfig{APIKey: "key", Model: "m", BaseURL: server.URL}, 0, 5*time.Second, 0)

		text, err := p.Complete(ctx, CompletionRequest{SystemPrompt: "s", UserPayload: "u"})
		require.NoError(t, err)
		assert.Equal(t, "part one part two", text)
	})

	t.Run("retries on 429 then surfaces exhaustion", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
		}))
		defer server.Close()

		p := NewAnthropicProvider(AnthropicConfig{APIKey: "k", Model: "m", BaseURL: server.URL}, 0, 5*time.Second, 2)
		p.retryDelay = time.Millisecond

		_, err := p.Complete(ctx, CompletionRequest{UserPayload: "u"})
		require.Error(t, err)
		assert.ErrorContains(t, err, "retries exhausted")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("no text content is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(messagesResponse{})
		}))
		defer server.Close()

		p := NewAnthropicProvider(AnthropicConfig{APIKey: "k", Model: "m", BaseURL: server.URL}, 0, 5*time.Second, 0)
		_, err := p.Complete(ctx, CompletionRequest{UserPayload: "u"})
		assert.ErrorContains(t, err, "no text content")
	})
}
