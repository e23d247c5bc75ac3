package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAdapterFor(t *testing.T, handler http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenAIAdapter("openai", Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func chatParams(model string) *ChatParams {
	return &ChatParams{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: "hello"}},
		Temperature: 0.7,
		MaxTokens:   100,
	}
}

func TestChatCompletionSuccess(t *testing.T) {
	adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hi there"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 34},
		})
	})

	completion, err := adapter.ChatCompletion(context.Background(), chatParams("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", completion.Content)
	assert.Equal(t, 12, completion.InputTokens)
	assert.Equal(t, 34, completion.OutputTokens)
}

func TestChatCompletionStatusError(t *testing.T) {
	adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "rate limited"},
		})
	})

	_, err := adapter.ChatCompletion(context.Background(), chatParams("gpt-4o"))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "rate limited", statusErr.Message)
}

func TestChatCompletionNoChoices(t *testing.T) {
	adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	completion, err := adapter.ChatCompletion(context.Background(), chatParams("gpt-4o"))
	require.NoError(t, err)
	assert.Empty(t, completion.Content)
}

func TestChatCompletionStream(t *testing.T) {
	adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		require.NotNil(t, req.StreamOptions)
		assert.True(t, req.StreamOptions.IncludeUsage)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	events, err := adapter.ChatCompletionStream(context.Background(), chatParams("gpt-4o"))
	require.NoError(t, err)

	var contents []string
	var usage *Usage
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Content != "" {
			contents = append(contents, ev.Content)
		}
		if ev.Usage != nil {
			usage = ev.Usage
		}
	}

	assert.Equal(t, []string{"Hel", "lo"}, contents)
	require.NotNil(t, usage)
	assert.Equal(t, 5, usage.InputTokens)
	assert.Equal(t, 2, usage.OutputTokens)
}

func TestChatCompletionStreamOpenError(t *testing.T) {
	adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := adapter.ChatCompletionStream(context.Background(), chatParams("gpt-4o"))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestChatCompletionStreamSkipsMalformedFrames(t *testing.T) {
	adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: this is not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	events, err := adapter.ChatCompletionStream(context.Background(), chatParams("gpt-4o"))
	require.NoError(t, err)

	var contents []string
	for ev := range events {
		require.NoError(t, ev.Err)
		contents = append(contents, ev.Content)
	}
	assert.Equal(t, []string{"ok"}, contents)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})
		assert.NoError(t, adapter.HealthCheck(context.Background()))
	})

	t.Run("unhealthy status", func(t *testing.T) {
		adapter := newAdapterFor(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		assert.Error(t, adapter.HealthCheck(context.Background()))
	})
}
