package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/modelgate/modelgate/internal/accounting"
	"github.com/modelgate/modelgate/internal/models"
)

// PricingStore resolves model rates from the model_pricing table. It
// implements accounting.PricingLookup.
type PricingStore struct {
	db *gorm.DB
}

func NewPricingStore(db *gorm.DB) *PricingStore {
	return &PricingStore{db: db}
}

func (s *PricingStore) GetPricing(ctx context.Context, model string) (*accounting.Pricing, error) {
	var row models.ModelPricing
	err := s.db.WithContext(ctx).Where("model_name = ?", model).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, accounting.ErrPricingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing for %s: %w", model, err)
	}

	return &accounting.Pricing{
		Model:                 row.ModelName,
		InputPricePerMillion:  row.InputCostPer1MTokens,
		OutputPricePerMillion: row.OutputCostPer1MTokens,
		MaxContext:            row.MaxContextTokens,
		UpdatedAt:             row.UpdatedAt,
	}, nil
}

// RequestLogStore persists request accounting rows. It implements
// accounting.RequestLogSink.
type RequestLogStore struct {
	db *gorm.DB
}

func NewRequestLogStore(db *gorm.DB) *RequestLogStore {
	return &RequestLogStore{db: db}
}

func (s *RequestLogStore) Save(ctx context.Context, log *models.RequestLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}
