package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config defines retry behavior for a single upstream invocation.
type Config struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Delay before the first retry; doubles each retry
	MaxJitter   time.Duration // Uniform jitter added to every delay
}

// DefaultConfig returns the gateway's default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 2,
		BaseDelay:   500 * time.Millisecond,
		MaxJitter:   250 * time.Millisecond,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// Do executes fn with retry logic. Only errors accepted by isRetryable are
// retried; the same target is used for every attempt, model-level fallback
// is the caller's concern.
func Do(ctx context.Context, config *Config, fn RetryableFunc, isRetryable IsRetryable) error {
	if config == nil {
		config = DefaultConfig()
	}
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-time.After(Backoff(attempt, config)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// Backoff returns the delay after a failed attempt k (1-based):
// base * 2^(k-1) plus uniform jitter in [0, MaxJitter].
func Backoff(attempt int, config *Config) time.Duration {
	if config == nil {
		config = DefaultConfig()
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := config.BaseDelay << uint(attempt-1)
	if config.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(config.MaxJitter)))
	}
	return delay
}
