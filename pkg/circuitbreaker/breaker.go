package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow when the circuit refuses the call.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the breaker state machine position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a three-state circuit breaker. After threshold consecutive
// failures it opens; once the cooldown elapses it admits a single probe
// call, and that probe's outcome decides whether it closes again.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	threshold int
	cooldown  time.Duration
}

// New creates a circuit breaker.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a call may proceed. When the cooldown of an open
// circuit has elapsed the breaker moves to half-open and admits exactly
// one probe; concurrent callers see ErrOpen until the probe resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the failure counter and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure increments the failure counter and opens the circuit when
// the threshold is reached. A failed half-open probe reopens immediately
// with a fresh cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.probing = false
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

// Reset manually closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// GetState returns the current state and failure count for monitoring.
func (b *Breaker) GetState() (State, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state, b.failures
}

// Manager holds one breaker per provider, shared by all concurrent requests.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	defaultThreshold int
	defaultCooldown  time.Duration
}

// NewManager creates a circuit breaker manager.
func NewManager(threshold int, cooldown time.Duration) *Manager {
	return &Manager{
		breakers:         make(map[string]*Breaker),
		defaultThreshold: threshold,
		defaultCooldown:  cooldown,
	}
}

// Get returns the breaker for a provider, creating it on first use.
func (m *Manager) Get(provider string) *Breaker {
	m.mu.RLock()
	breaker, exists := m.breakers[provider]
	m.mu.RUnlock()

	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists = m.breakers[provider]; exists {
		return breaker
	}

	breaker = New(m.defaultThreshold, m.defaultCooldown)
	m.breakers[provider] = breaker
	return breaker
}

// Reset resets a specific provider's circuit breaker.
func (m *Manager) Reset(provider string) {
	m.Get(provider).Reset()
}

// ResetAll resets all circuit breakers.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, breaker := range m.breakers {
		breaker.Reset()
	}
}

// States returns the state of every breaker for monitoring.
func (m *Manager) States() map[string]map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]map[string]interface{})
	for provider, breaker := range m.breakers {
		state, failures := breaker.GetState()
		states[provider] = map[string]interface{}{
			"state":    state.String(),
			"failures": failures,
		}
	}

	return states
}
