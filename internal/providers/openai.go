package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds the upstream connection settings.
type Config struct {
	APIKey             string
	BaseURL            string
	Timeout            time.Duration
	HealthCheckTimeout time.Duration
	MaxConnsPerServer  int
	ConnLifetime       time.Duration
	UseHTTP2           bool
}

// OpenAIAdapter speaks the OpenAI-compatible chat completions protocol.
// The HTTP client and its connection pool are long-lived and shared by
// all concurrent requests.
type OpenAIAdapter struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	healthCheckTimeout time.Duration
}

// NewOpenAIAdapter creates an adapter for one OpenAI-compatible upstream.
func NewOpenAIAdapter(name string, cfg Config, logger *zap.Logger) *OpenAIAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxConns := cfg.MaxConnsPerServer
	if maxConns == 0 {
		maxConns = 100
	}
	connLifetime := cfg.ConnLifetime
	if connLifetime == 0 {
		connLifetime = 5 * time.Minute
	}
	healthTimeout := cfg.HealthCheckTimeout
	if healthTimeout == 0 {
		healthTimeout = 5 * time.Second
	}

	transport := &http.Transport{
		MaxConnsPerHost:     maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     connLifetime,
		ForceAttemptHTTP2:   cfg.UseHTTP2,
	}

	return &OpenAIAdapter{
		name:    name,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger:             logger,
		healthCheckTimeout: healthTimeout,
	}
}

func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Wire types for the OpenAI chat completions protocol.

type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Temperature   float64        `json:"temperature,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, params *ChatParams) (*Completion, error) {
	body, err := a.post(ctx, &chatCompletionRequest{
		Model:       params.Model,
		Messages:    params.Messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &Completion{}, nil
	}

	completion := &Completion{Content: resp.Choices[0].Message.Content}
	if resp.Usage != nil {
		completion.InputTokens = resp.Usage.PromptTokens
		completion.OutputTokens = resp.Usage.CompletionTokens
	}
	return completion, nil
}

func (a *OpenAIAdapter) ChatCompletionStream(ctx context.Context, params *ChatParams) (<-chan StreamEvent, error) {
	body, err := a.post(ctx, &chatCompletionRequest{
		Model:         params.Model,
		Messages:      params.Messages,
		Temperature:   params.Temperature,
		MaxTokens:     params.MaxTokens,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer func() { _ = body.Close() }()
		a.parseStream(ctx, body, events)
	}()

	return events, nil
}

// post sends a chat completions request and returns the response body of a
// 200 reply. Any other status is mapped to a StatusError.
func (a *OpenAIAdapter) post(ctx context.Context, payload *chatCompletionRequest) (io.ReadCloser, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		message := string(raw)
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			message = errResp.Error.Message
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	return resp.Body, nil
}

// parseStream reads the upstream SSE body and forwards delta content and
// the final usage record. A read failure mid-stream is surfaced as a
// terminal Err event.
func (a *OpenAIAdapter) parseStream(ctx context.Context, body io.Reader, events chan<- StreamEvent) {
	reader := bufio.NewReader(body)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				a.logger.Debug("Upstream stream read failed", zap.Error(err))
				select {
				case events <- StreamEvent{Err: fmt.Errorf("upstream stream failed: %w", err)}:
				case <-ctx.Done():
				}
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed frames
			continue
		}

		event := StreamEvent{}
		if len(chunk.Choices) > 0 {
			event.Content = chunk.Choices[0].Delta.Content
		}
		if chunk.Usage != nil {
			event.Usage = &Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if event.Content == "" && event.Usage == nil {
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}
}

// HealthCheck issues a short probe against the upstream models endpoint.
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}
