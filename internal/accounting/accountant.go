package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/models"
)

// ErrPricingNotFound is returned by a PricingLookup when no rate exists
// for a model. The accountant treats it as "bill zero", not as a failure.
var ErrPricingNotFound = errors.New("no pricing for model")

// PricingLookup resolves the rate for a model.
type PricingLookup interface {
	GetPricing(ctx context.Context, model string) (*Pricing, error)
}

// RequestLogSink persists accounting rows. Implementations must accept
// concurrent writes.
type RequestLogSink interface {
	Save(ctx context.Context, log *models.RequestLog) error
}

// Accountant records token usage and estimated cost for every successful
// request. It is strictly best-effort: nothing here may turn a successful
// chat response into a client-visible error.
type Accountant struct {
	pricing PricingLookup
	sink    RequestLogSink
	logger  *zap.Logger
}

// NewAccountant creates an accountant.
func NewAccountant(pricing PricingLookup, sink RequestLogSink, logger *zap.Logger) *Accountant {
	return &Accountant{
		pricing: pricing,
		sink:    sink,
		logger:  logger,
	}
}

// TrackInput carries the facts of one successful attempt.
type TrackInput struct {
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	ResponseTime time.Duration
	WasFallback  bool
}

// Track computes the request cost and persists a RequestLog row. Pricing
// and persistence failures are logged and swallowed; the returned amount
// is zero in that case.
func (a *Accountant) Track(ctx context.Context, in TrackInput) CostAmount {
	cost := ZeroCost

	pricing, err := a.pricing.GetPricing(ctx, in.Model)
	switch {
	case err == nil:
		cost = pricing.Cost(in.InputTokens, in.OutputTokens)
	case errors.Is(err, ErrPricingNotFound):
		a.logger.Debug("No pricing for model, billing zero", zap.String("model", in.Model))
	default:
		a.logger.Warn("Pricing lookup failed, billing zero",
			zap.String("model", in.Model),
			zap.Error(err))
	}

	log := &models.RequestLog{
		ID:               uuid.New(),
		Timestamp:        time.Now().UTC(),
		ModelUsed:        in.Model,
		InputTokens:      in.InputTokens,
		OutputTokens:     in.OutputTokens,
		EstimatedCostUSD: cost.USD(),
		ProviderName:     in.Provider,
		ResponseTimeMs:   in.ResponseTime.Milliseconds(),
		WasFallback:      in.WasFallback,
	}

	if err := a.sink.Save(ctx, log); err != nil {
		a.logger.Error("Failed to persist request log",
			zap.String("model", in.Model),
			zap.String("request_log_id", log.ID.String()),
			zap.Error(err))
		return ZeroCost
	}

	return cost
}
