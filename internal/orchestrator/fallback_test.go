package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackNextReturnsSuccessor(t *testing.T) {
	chain := NewFallbackChain([]string{"a/large", "a/balanced", "a/default"})

	next, err := chain.Next("a/large", []string{"a/large"})
	require.NoError(t, err)
	assert.Equal(t, "a/balanced", next)

	next, err = chain.Next("a/balanced", []string{"a/large", "a/balanced"})
	require.NoError(t, err)
	assert.Equal(t, "a/default", next)
}

func TestFallbackNextWrapsAround(t *testing.T) {
	chain := NewFallbackChain([]string{"a/large", "a/balanced", "a/default"})

	// The last element's successor is the chain head.
	next, err := chain.Next("a/default", []string{"a/default"})
	require.NoError(t, err)
	assert.Equal(t, "a/large", next)
}

func TestFallbackNextSkipsAttempted(t *testing.T) {
	chain := NewFallbackChain([]string{"a/large", "a/balanced", "a/default"})

	next, err := chain.Next("a/default", []string{"a/default", "a/large"})
	require.NoError(t, err)
	assert.Equal(t, "a/balanced", next)
}

func TestFallbackNextNeverReturnsAttempted(t *testing.T) {
	models := []string{"m1", "m2", "m3", "m4"}
	chain := NewFallbackChain(models)

	// Walk to exhaustion from every starting point; every selection must
	// strictly extend the attempted set.
	for _, start := range models {
		attempted := []string{start}
		current := start
		for {
			next, err := chain.Next(current, attempted)
			if err != nil {
				assert.Equal(t, KindAllProvidersFailed, Kind(err))
				break
			}
			assert.NotContains(t, attempted, next)
			attempted = append(attempted, next)
			current = next
		}
		assert.Len(t, attempted, len(models))
	}
}

func TestFallbackNextExhausted(t *testing.T) {
	chain := NewFallbackChain([]string{"a/large", "a/balanced"})

	_, err := chain.Next("a/balanced", []string{"a/large", "a/balanced"})
	require.Error(t, err)
	assert.Equal(t, KindAllProvidersFailed, Kind(err))
	assert.Contains(t, err.Error(), "All providers failed")
}

func TestFallbackNextUnknownModel(t *testing.T) {
	chain := NewFallbackChain([]string{"a/large", "a/balanced"})

	_, err := chain.Next("b/unknown", []string{"b/unknown"})
	require.Error(t, err)
	assert.Equal(t, KindModelUnknown, Kind(err))
}
