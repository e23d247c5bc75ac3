package orchestrator

// FallbackChain is the configured ordered sequence of models tried after
// a transient failure. It is pure: no I/O, no state.
type FallbackChain struct {
	chain []string
}

// NewFallbackChain creates a chain over the configured model order.
func NewFallbackChain(chain []string) *FallbackChain {
	return &FallbackChain{chain: chain}
}

// Models returns the configured chain order.
func (c *FallbackChain) Models() []string {
	return c.chain
}

// Next returns the model to try after failedModel, scanning the chain
// circularly from the failed model's successor and skipping everything
// already attempted. A model outside the chain, or an exhausted chain,
// ends the walk with AllProvidersFailed.
func (c *FallbackChain) Next(failedModel string, attempted []string) (string, error) {
	start := -1
	for i, model := range c.chain {
		if model == failedModel {
			start = i
			break
		}
	}
	if start < 0 {
		return "", &GatewayError{
			Kind:    KindModelUnknown,
			Message: "model " + failedModel + " is not in the fallback chain",
		}
	}

	tried := make(map[string]bool, len(attempted))
	for _, model := range attempted {
		tried[model] = true
	}

	n := len(c.chain)
	for i := 1; i <= n; i++ {
		candidate := c.chain[(start+i)%n]
		if !tried[candidate] {
			return candidate, nil
		}
	}

	return "", NewAllProvidersFailedError(attempted)
}
