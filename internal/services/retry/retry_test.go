package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxJitter: 0}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, func(err error) bool { return errors.Is(err, errTransient) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	terminal := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return terminal
	}, func(err error) bool { return false })

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return errTransient
	}, func(err error) bool { return true })

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &Config{MaxAttempts: 5, BaseDelay: time.Second, MaxJitter: 0}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(ctx context.Context) error {
			calls++
			return errTransient
		}, func(err error) bool { return true })
	}()

	// Cancel while Do waits out the first backoff.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestBackoffDoubles(t *testing.T) {
	cfg := &Config{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxJitter: 0}

	assert.Equal(t, 500*time.Millisecond, Backoff(1, cfg))
	assert.Equal(t, time.Second, Backoff(2, cfg))
	assert.Equal(t, 2*time.Second, Backoff(3, cfg))
}

func TestBackoffJitterBounds(t *testing.T) {
	cfg := &Config{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, MaxJitter: 250 * time.Millisecond}

	for i := 0; i < 100; i++ {
		d := Backoff(1, cfg)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 750*time.Millisecond)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.MaxJitter)
}
