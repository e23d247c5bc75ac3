package orchestrator

import "strings"

// ModelSelector picks the initial model for a request from its estimated
// token count and the optional user-requested model.
type ModelSelector struct {
	defaultModel      string
	largeContextModel string

	standardContextLimit int
	largeContextLimit    int
}

// NewModelSelector creates a selector with the configured routing models
// and context ceilings.
func NewModelSelector(defaultModel, largeContextModel string, standardLimit, largeLimit int) *ModelSelector {
	if standardLimit <= 0 {
		standardLimit = 10_000
	}
	if largeLimit <= 0 {
		largeLimit = 200_000
	}

	return &ModelSelector{
		defaultModel:         defaultModel,
		largeContextModel:    largeContextModel,
		standardContextLimit: standardLimit,
		largeContextLimit:    largeLimit,
	}
}

// Select applies the routing rules in order: reject requests above the
// global context ceiling, honor an explicit user model, route oversized
// contexts to the large-context model, and default otherwise.
func (s *ModelSelector) Select(estimatedTokens int, userModel string) (string, error) {
	if estimatedTokens > s.largeContextLimit {
		return "", NewTokenLimitError(estimatedTokens, s.largeContextLimit)
	}

	// User intent overrides routing heuristics.
	if strings.TrimSpace(userModel) != "" {
		return userModel, nil
	}

	if estimatedTokens > s.standardContextLimit {
		return s.largeContextModel, nil
	}

	return s.defaultModel, nil
}
