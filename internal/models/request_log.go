package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestLog is the accounting row written once per successful request.
// Immutable after construction; the store owns it from then on.
type RequestLog struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp        time.Time `gorm:"index" json:"timestamp"`
	ModelUsed        string    `gorm:"size:300" json:"model_used"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	EstimatedCostUSD float64   `gorm:"type:decimal(18,6)" json:"estimated_cost_usd"`
	ProviderName     string    `gorm:"size:100;index" json:"provider_name"`
	ResponseTimeMs   int64     `json:"response_time_ms"`
	WasFallback      bool      `json:"was_fallback"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
