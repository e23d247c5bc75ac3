package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/services/retry"
	"github.com/modelgate/modelgate/pkg/circuitbreaker"
)

// ResiliencePolicy wraps every single-attempt provider invocation with
// retry-on-transient around a per-provider circuit breaker. Retry sits
// outside the breaker: an attempt that trips the circuit sees an
// open-circuit error on its next try instead of punching through.
// Breaker state is process-wide and shared by all concurrent requests.
type ResiliencePolicy struct {
	retryConfig *retry.Config
	breakers    *circuitbreaker.Manager
	logger      *zap.Logger
}

// NewResiliencePolicy creates the shared resilience layer.
func NewResiliencePolicy(retryConfig *retry.Config, breakers *circuitbreaker.Manager, logger *zap.Logger) *ResiliencePolicy {
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}
	return &ResiliencePolicy{
		retryConfig: retryConfig,
		breakers:    breakers,
		logger:      logger,
	}
}

// Execute runs fn under the retry and circuit breaker policy for one
// provider. It retries the same target only; changing models is the
// attempt loop's concern.
func (p *ResiliencePolicy) Execute(ctx context.Context, provider string, fn func(context.Context) error) error {
	breaker := p.breakers.Get(provider)

	return retry.Do(ctx, p.retryConfig, func(ctx context.Context) error {
		if err := breaker.Allow(); err != nil {
			p.logger.Debug("Circuit open, refusing call", zap.String("provider", provider))
			return &GatewayError{
				Kind:    KindCircuitOpen,
				Message: "provider " + provider + " circuit is open",
				Err:     err,
			}
		}

		if err := fn(ctx); err != nil {
			// Terminal upstream errors say more about the request than
			// the provider; only transient failures count against the
			// circuit.
			if IsTransient(err) && Kind(err) != KindCircuitOpen {
				breaker.RecordFailure()
			}
			return err
		}

		breaker.RecordSuccess()
		return nil
	}, IsTransient)
}

// BreakerStates exposes breaker state for monitoring.
func (p *ResiliencePolicy) BreakerStates() map[string]map[string]interface{} {
	return p.breakers.States()
}
