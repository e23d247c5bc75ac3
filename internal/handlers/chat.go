package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/orchestrator"
	"github.com/modelgate/modelgate/internal/providers"
)

// ChatHandler exposes the unary and streaming chat completion endpoints.
type ChatHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

func NewChatHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: orch,
		logger:       logger,
	}
}

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestDTO struct {
	Messages    []messageDTO `json:"messages"`
	Model       string       `json:"model,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"maxTokens,omitempty"`
}

type chatResponseDTO struct {
	Content          string  `json:"content"`
	Model            string  `json:"model"`
	TokensUsed       int     `json:"tokensUsed"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
	ResponseTime     string  `json:"responseTime"`
}

func (dto *chatRequestDTO) toRequest() *orchestrator.ChatRequest {
	messages := make([]providers.Message, 0, len(dto.Messages))
	for _, m := range dto.Messages {
		messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
	}
	return &orchestrator.ChatRequest{
		Messages:    messages,
		Model:       dto.Model,
		Temperature: dto.Temperature,
		MaxTokens:   dto.MaxTokens,
	}
}

// ChatCompletion handles POST /v1/chat/completions.
func (h *ChatHandler) ChatCompletion(w http.ResponseWriter, r *http.Request) {
	var dto chatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		WriteProblem(w, r, orchestrator.NewValidationError("request body is not valid JSON"))
		return
	}

	resp, err := h.orchestrator.Execute(r.Context(), dto.toRequest())
	if err != nil {
		h.logger.Warn("Chat completion failed",
			zap.String("kind", orchestrator.Kind(err).String()),
			zap.Error(err))
		WriteProblem(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chatResponseDTO{
		Content:          resp.Content,
		Model:            resp.Model,
		TokensUsed:       resp.TokensUsed,
		EstimatedCostUSD: resp.EstimatedCost.USD(),
		ResponseTime:     formatDuration(resp.ResponseTime),
	})
}

// ChatCompletionStream handles POST /v1/chat/completions/stream. Frames
// go out as SSE data events; SSE headers are deferred until the first
// frame so pre-stream failures can still surface as problem responses.
func (h *ChatHandler) ChatCompletionStream(w http.ResponseWriter, r *http.Request) {
	var dto chatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		WriteProblem(w, r, orchestrator.NewValidationError("request body is not valid JSON"))
		return
	}

	session, err := h.orchestrator.ExecuteStream(r.Context(), dto.toRequest())
	if err != nil {
		WriteProblem(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteProblem(w, r, &orchestrator.GatewayError{
			Kind:    orchestrator.KindInternal,
			Message: "streaming is not supported by this connection",
		})
		return
	}

	started := false
	for frame := range session.Frames() {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}

		data, marshalErr := json.Marshal(frame)
		if marshalErr != nil {
			h.logger.Error("Failed to marshal stream frame", zap.Error(marshalErr))
			return
		}

		if _, writeErr := fmt.Fprintf(w, "data: %s\n\n", data); writeErr != nil {
			// Client went away; the producer sees the context cancel.
			return
		}
		flusher.Flush()
	}

	if !started {
		// Stream failed before the first chunk: the response is still
		// unwritten, so surface the terminal error as a plain problem.
		streamErr := session.Err()
		if streamErr == nil {
			streamErr = &orchestrator.GatewayError{
				Kind:    orchestrator.KindInternal,
				Message: "stream ended without producing any frames",
			}
		}
		h.logger.Warn("Streaming completion failed before first chunk",
			zap.String("kind", orchestrator.Kind(streamErr).String()),
			zap.Error(streamErr))
		WriteProblem(w, r, streamErr)
	}
}

// formatDuration renders a wall time as hh:mm:ss.fff.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	millis := int(d/time.Millisecond) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
