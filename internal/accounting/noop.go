package accounting

import (
	"context"

	"github.com/modelgate/modelgate/internal/models"
)

// NoopPricingLookup answers every lookup with "no pricing". Used when
// the gateway runs without a database; everything bills at zero.
type NoopPricingLookup struct{}

func (NoopPricingLookup) GetPricing(ctx context.Context, model string) (*Pricing, error) {
	return nil, ErrPricingNotFound
}

// NoopRequestLogSink drops request logs. Used when the gateway runs
// without a database.
type NoopRequestLogSink struct{}

func (NoopRequestLogSink) Save(ctx context.Context, log *models.RequestLog) error {
	return nil
}
