package providers

import (
	"context"
	"fmt"
)

// Adapter is the contract the orchestration core relies on for a single
// upstream attempt against one model.
type Adapter interface {
	// ChatCompletion performs one unary completion call.
	ChatCompletion(ctx context.Context, params *ChatParams) (*Completion, error)

	// ChatCompletionStream opens a streaming completion. The returned
	// channel is finite and not restartable; the final event carries
	// usage when the upstream reports it. Connection and status errors
	// are returned synchronously, before any event is produced.
	ChatCompletionStream(ctx context.Context, params *ChatParams) (<-chan StreamEvent, error)

	// Name identifies the upstream provider for breakers and logs.
	Name() string
}

// Message is one chat turn sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams carries everything a single attempt needs.
type ChatParams struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completion is the result of a unary call. Token counts are the exact
// upstream-reported values, or zero when the upstream omits usage.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Usage is the upstream-reported token accounting for a stream.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// StreamEvent is one element of a streaming completion. Exactly one of
// Content, Usage or Err is meaningful per event; an Err event is always
// the last one before the channel closes.
type StreamEvent struct {
	Content string
	Usage   *Usage
	Err     error
}

// StatusError is an upstream HTTP error, classified by status code.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}
