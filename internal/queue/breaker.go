package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the per-class circuit breakers.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // Failures before the circuit trips (default 5)
	OpenTimeout         time.Duration // How long the circuit stays open (default 30s)
	HalfOpenRequests    uint32        // Probe requests allowed half-open (default 3)
}

// DefaultBreakerSettings returns the default breaker tuning.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    3,
	}
}

// BreakerRegistry manages one circuit breaker per task class, so a class
// of repeatedly failing execution bodies trips to fail-fast without
// affecting unrelated classes.
type BreakerRegistry struct {
	settings BreakerSettings
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a registry with the given settings. Zero
// fields fall back to defaults.
func NewBreakerRegistry(settings BreakerSettings) *BreakerRegistry {
	def := DefaultBreakerSettings()
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = def.OpenTimeout
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = def.HalfOpenRequests
	}
	return &BreakerRegistry{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Execute runs fn through the breaker for the given class.
func (r *BreakerRegistry) Execute(class string, fn func() error) error {
	cb := r.get(class)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// get returns the breaker for class, creating it on first use.
func (r *BreakerRegistry) get(class string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[class]; ok {
		return cb
	}

	threshold := r.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        class,
		MaxRequests: r.settings.HalfOpenRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("task class %q breaker: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cooperative cancellation is not a body failure.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[class] = cb
	return cb
}
