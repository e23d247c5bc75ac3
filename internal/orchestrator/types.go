package orchestrator

import (
	"strings"
	"time"

	"github.com/modelgate/modelgate/internal/accounting"
	"github.com/modelgate/modelgate/internal/providers"
)

// ProviderName derives the display provider from a "<provider>/<model>"
// id. Model equality is always by full string; this is cosmetic.
func ProviderName(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}

// ChatRequest is one inbound chat completion request. Model, Temperature
// and MaxTokens are optional; zero values mean "use the defaults".
type ChatRequest struct {
	Messages    []providers.Message
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// Validate checks the request shape before any upstream work happens.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewValidationError("messages must not be empty")
	}
	for _, msg := range r.Messages {
		switch msg.Role {
		case "system", "user", "assistant":
		default:
			return NewValidationError("message role must be system, user or assistant")
		}
		if msg.Content == "" {
			return NewValidationError("message content must not be empty")
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return NewValidationError("temperature must be between 0 and 2")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return NewValidationError("maxTokens must be positive")
	}
	return nil
}

// EstimateTokens is the routing heuristic: total characters across all
// messages divided by four. Deliberately crude, used only for routing and
// never for billing; non-Latin scripts will under-count.
func EstimateTokens(messages []providers.Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
	}
	return chars / 4
}

// ChatResponse is the result of a successful unary orchestration.
type ChatResponse struct {
	Content       string
	Model         string
	TokensUsed    int
	EstimatedCost accounting.CostAmount
	ResponseTime  time.Duration
}

// attemptResult is the outcome of one successful attempt, before
// accounting runs.
type attemptResult struct {
	content      string
	inputTokens  int
	outputTokens int
	modelUsed    string
	attempts     int
}
