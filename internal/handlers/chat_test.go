package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/accounting"
	"github.com/modelgate/modelgate/internal/middleware"
	"github.com/modelgate/modelgate/internal/orchestrator"
	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/internal/services/retry"
	"github.com/modelgate/modelgate/pkg/circuitbreaker"
)

// scriptedAdapter answers every model with the same scripted outcome.
type scriptedAdapter struct {
	completion *providers.Completion
	err        error
	events     []providers.StreamEvent
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) ChatCompletion(ctx context.Context, params *providers.ChatParams) (*providers.Completion, error) {
	return s.completion, s.err
}

func (s *scriptedAdapter) ChatCompletionStream(ctx context.Context, params *providers.ChatParams) (<-chan providers.StreamEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan providers.StreamEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestHandler(adapter providers.Adapter) *ChatHandler {
	logger := zap.NewNop()
	breakers := circuitbreaker.NewManager(10, time.Minute)
	policy := orchestrator.NewResiliencePolicy(&retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}, breakers, logger)
	selector := orchestrator.NewModelSelector("a/default", "a/large", 10_000, 200_000)
	chain := orchestrator.NewFallbackChain([]string{"a/default", "a/balanced", "a/large"})
	accountant := accounting.NewAccountant(accounting.NoopPricingLookup{}, accounting.NoopRequestLogSink{}, logger)

	orch := orchestrator.New(logger, adapter, selector, chain, policy, accountant, nil, orchestrator.DefaultOptions())
	return NewChatHandler(orch, logger)
}

func doRequest(handler http.HandlerFunc, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	middleware.Correlation(handler).ServeHTTP(rec, req)
	return rec
}

func TestChatCompletionSuccess(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{
		completion: &providers.Completion{Content: "hello back", InputTokens: 10, OutputTokens: 20},
	})

	rec := doRequest(h.ChatCompletion, `{"messages":[{"role":"user","content":"hello"}],"model":"a/x"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Content          string  `json:"content"`
		Model            string  `json:"model"`
		TokensUsed       int     `json:"tokensUsed"`
		EstimatedCostUSD float64 `json:"estimatedCostUsd"`
		ResponseTime     string  `json:"responseTime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "hello back", resp.Content)
	assert.Equal(t, "a/x", resp.Model)
	assert.Equal(t, 30, resp.TokensUsed)
	assert.Zero(t, resp.EstimatedCostUSD)
	assert.Regexp(t, regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3}$`), resp.ResponseTime)
}

func TestChatCompletionValidation(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{})

	tests := []struct {
		name string
		body string
	}{
		{"temperature above two", `{"messages":[{"role":"user","content":"x"}],"temperature":3.0}`},
		{"no messages", `{"messages":[]}`},
		{"malformed json", `{"messages":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h.ChatCompletion, tt.body, nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem ProblemDetails
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, http.StatusBadRequest, problem.Status)
			assert.Equal(t, "Invalid request", problem.Title)
		})
	}
}

func TestChatCompletionAllProvidersFailed(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{
		err: &providers.StatusError{StatusCode: http.StatusInternalServerError},
	})

	rec := doRequest(h.ChatCompletion, `{"messages":[{"role":"user","content":"x"}]}`, nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Service unavailable", problem.Title)
	assert.Contains(t, problem.Detail, "All providers failed")
}

func TestChatCompletionEchoesCorrelationID(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{
		err: &providers.StatusError{StatusCode: http.StatusInternalServerError},
	})

	rec := doRequest(h.ChatCompletion, `{"messages":[{"role":"user","content":"x"}]}`,
		map[string]string{middleware.CorrelationHeader: "trace-1234"})

	assert.Equal(t, "trace-1234", rec.Header().Get(middleware.CorrelationHeader))

	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "trace-1234", problem.CorrelationID)
}

func TestChatCompletionGeneratesCorrelationID(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{
		completion: &providers.Completion{Content: "ok"},
	})

	rec := doRequest(h.ChatCompletion, `{"messages":[{"role":"user","content":"x"}]}`, nil)
	assert.NotEmpty(t, rec.Header().Get(middleware.CorrelationHeader))
}

func TestChatCompletionStreamSSE(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{
		events: []providers.StreamEvent{
			{Content: "Hel"},
			{Content: "lo"},
		},
	})

	rec := doRequest(h.ChatCompletionStream, `{"messages":[{"role":"user","content":"hello"}],"model":"a/x"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	events := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, events, 3)

	var first, second, last struct {
		Type     string `json:"type"`
		Content  string `json:"content"`
		Metadata *struct {
			Model       string `json:"model"`
			TotalTokens int    `json:"totalTokens"`
			Provider    string `json:"provider"`
		} `json:"metadata"`
	}

	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[0], "data: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[1], "data: ")), &second))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[2], "data: ")), &last))

	assert.Equal(t, "chunk", first.Type)
	assert.Equal(t, "Hel", first.Content)
	assert.Equal(t, "chunk", second.Type)
	assert.Equal(t, "lo", second.Content)

	assert.Equal(t, "complete", last.Type)
	require.NotNil(t, last.Metadata)
	assert.Equal(t, "a/x", last.Metadata.Model)
	assert.Equal(t, 2, last.Metadata.TotalTokens)
	assert.Equal(t, "a", last.Metadata.Provider)
}

func TestChatCompletionStreamFailureBeforeFirstChunk(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{
		err: &providers.StatusError{StatusCode: http.StatusServiceUnavailable},
	})

	rec := doRequest(h.ChatCompletionStream, `{"messages":[{"role":"user","content":"x"}]}`, nil)

	// No SSE bytes were written, so the failure surfaces as a problem.
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem.Detail, "All providers failed")
}

func TestChatCompletionStreamValidation(t *testing.T) {
	h := newTestHandler(&scriptedAdapter{})

	rec := doRequest(h.ChatCompletionStream, `{"messages":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{1500 * time.Millisecond, "00:00:01.500"},
		{90 * time.Second, "00:01:30.000"},
		{time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, "01:02:03.045"},
		{-time.Second, "00:00:00.000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}
