package accounting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/models"
)

type stubPricing struct {
	rates map[string]*Pricing
	err   error
}

func (s *stubPricing) GetPricing(ctx context.Context, model string) (*Pricing, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.rates[model]; ok {
		return p, nil
	}
	return nil, ErrPricingNotFound
}

type stubSink struct {
	mu   sync.Mutex
	logs []*models.RequestLog
	err  error
}

func (s *stubSink) Save(ctx context.Context, log *models.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, log)
	return nil
}

func trackInput() TrackInput {
	return TrackInput{
		Model:        "a/x",
		Provider:     "a",
		InputTokens:  100,
		OutputTokens: 200,
		ResponseTime: 1500 * time.Millisecond,
		WasFallback:  true,
	}
}

func TestTrackWithPricing(t *testing.T) {
	sink := &stubSink{}
	a := NewAccountant(&stubPricing{rates: map[string]*Pricing{
		"a/x": {Model: "a/x", InputPricePerMillion: 1.0, OutputPricePerMillion: 2.0, MaxContext: 128_000},
	}}, sink, zap.NewNop())

	cost := a.Track(context.Background(), trackInput())
	assert.InDelta(t, 0.0005, cost.USD(), 1e-9)

	require.Len(t, sink.logs, 1)
	log := sink.logs[0]
	assert.NotEqual(t, log.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, "a/x", log.ModelUsed)
	assert.Equal(t, "a", log.ProviderName)
	assert.Equal(t, 100, log.InputTokens)
	assert.Equal(t, 200, log.OutputTokens)
	assert.InDelta(t, 0.0005, log.EstimatedCostUSD, 1e-9)
	assert.Equal(t, int64(1500), log.ResponseTimeMs)
	assert.True(t, log.WasFallback)
	assert.False(t, log.Timestamp.IsZero())
}

func TestTrackWithoutPricingBillsZero(t *testing.T) {
	sink := &stubSink{}
	a := NewAccountant(&stubPricing{}, sink, zap.NewNop())

	cost := a.Track(context.Background(), trackInput())
	assert.True(t, cost.IsZero())

	// The log row is still written, with a zero cost.
	require.Len(t, sink.logs, 1)
	assert.Zero(t, sink.logs[0].EstimatedCostUSD)
}

func TestTrackPricingLookupErrorBillsZero(t *testing.T) {
	sink := &stubSink{}
	a := NewAccountant(&stubPricing{err: errors.New("db down")}, sink, zap.NewNop())

	cost := a.Track(context.Background(), trackInput())
	assert.True(t, cost.IsZero())
	require.Len(t, sink.logs, 1)
}

func TestTrackSinkFailureReturnsZero(t *testing.T) {
	sink := &stubSink{err: errors.New("insert failed")}
	a := NewAccountant(&stubPricing{rates: map[string]*Pricing{
		"a/x": {Model: "a/x", InputPricePerMillion: 1.0, OutputPricePerMillion: 2.0, MaxContext: 128_000},
	}}, sink, zap.NewNop())

	// Track never panics or errors; the caller's response is already
	// committed by the time accounting runs.
	cost := a.Track(context.Background(), trackInput())
	assert.True(t, cost.IsZero())
}

func TestNoopImplementations(t *testing.T) {
	_, err := NoopPricingLookup{}.GetPricing(context.Background(), "a/x")
	assert.ErrorIs(t, err, ErrPricingNotFound)

	assert.NoError(t, NoopRequestLogSink{}.Save(context.Background(), &models.RequestLog{}))
}
