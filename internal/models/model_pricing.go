package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModelPricing is a per-model rate row, expressed per million tokens for
// input and output separately. Seeded externally; the gateway only reads it.
type ModelPricing struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ModelName             string    `gorm:"size:300;uniqueIndex" json:"model_name"`
	ProviderName          string    `gorm:"size:100" json:"provider_name"`
	InputCostPer1MTokens  float64   `gorm:"type:decimal(18,6)" json:"input_cost_per_1m_tokens"`
	OutputCostPer1MTokens float64   `gorm:"type:decimal(18,6)" json:"output_cost_per_1m_tokens"`
	MaxContextTokens      int       `json:"max_context_tokens"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (ModelPricing) TableName() string {
	return "model_pricing"
}

func (m *ModelPricing) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
