package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/modelgate/modelgate/internal/models"
)

// defaultPricing covers the three routed models so a fresh install
// accounts real costs without manual seeding. Prices are USD per one
// million tokens.
var defaultPricing = []models.ModelPricing{
	{
		ModelName:             "openai/gpt-4o-mini",
		ProviderName:          "openai",
		InputCostPer1MTokens:  0.15,
		OutputCostPer1MTokens: 0.60,
		MaxContextTokens:      128000,
	},
	{
		ModelName:             "openai/gpt-4o",
		ProviderName:          "openai",
		InputCostPer1MTokens:  2.50,
		OutputCostPer1MTokens: 10.00,
		MaxContextTokens:      128000,
	},
	{
		ModelName:             "openai/gpt-4.1",
		ProviderName:          "openai",
		InputCostPer1MTokens:  2.00,
		OutputCostPer1MTokens: 8.00,
		MaxContextTokens:      1000000,
	},
}

// SeedPricing upserts the default pricing rows, keyed by model name.
func SeedPricing(db *gorm.DB) error {
	now := time.Now().UTC()

	for _, row := range defaultPricing {
		row.UpdatedAt = now
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "model_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider_name",
				"input_cost_per_1m_tokens",
				"output_cost_per_1m_tokens",
				"max_context_tokens",
				"updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to seed pricing for %s: %w", row.ModelName, err)
		}
	}

	return nil
}

// ListPricing returns all pricing rows ordered by model name.
func ListPricing(db *gorm.DB) ([]models.ModelPricing, error) {
	var rows []models.ModelPricing
	if err := db.Order("model_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pricing: %w", err)
	}
	return rows, nil
}
