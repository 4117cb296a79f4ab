// Package breaker wraps sony/gobreaker with a manager that hands out one
// circuit per named external service (twilio, llm, slack, ...). Callers
// get a stable error to branch on when a circuit is open instead of
// stacking failures onto a dead dependency.
package breaker

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when the named circuit refuses the call.
var ErrOpen = errors.New("circuit open")

// Breaker guards calls to one external service.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// Do runs fn through the circuit. When the circuit is open (or half-open
// and already probing), fn is not called and ErrOpen is returned.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the circuit state as a lowercase string
// (closed, open, half-open).
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Manager creates and caches breakers by service name with shared
// threshold settings.
type Manager struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	failureThreshold uint32
	recoveryTimeout  time.Duration
}

// NewManager creates a breaker manager. failureThreshold consecutive
// failures open a circuit; after recoveryTimeout the next call probes it.
func NewManager(failureThreshold uint32, recoveryTimeout time.Duration) *Manager {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 60 * time.Second
	}
	return &Manager{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the breaker for the named service, creating it on first use.
func (m *Manager) Get(name string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}

	threshold := m.failureThreshold
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     m.recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Breaker] %s: %s -> %s", name, from, to)
		},
	}
	b := &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
	m.breakers[name] = b
	return b
}

// States returns a snapshot of every known circuit's state, for stats
// endpoints.
func (m *Manager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.State()
	}
	return out
}
