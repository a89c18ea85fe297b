package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// TestBreakerTripsAfterConsecutiveFailures verifies the per-class
// breaker opens once the failure threshold is crossed.
func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	br := NewBreakerRegistry(BreakerSettings{
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	})

	bodyErr := errors.New("body failed")
	for i := 0; i < 3; i++ {
		if err := br.Execute("flaky", func() error { return bodyErr }); !errors.Is(err, bodyErr) {
			t.Fatalf("attempt %d: got %v, want body error", i, err)
		}
	}

	err := br.Execute("flaky", func() error { return nil })
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("got %v, want ErrOpenState after trip", err)
	}
}

// TestBreakerIsolatesClasses verifies one class tripping never affects
// another.
func TestBreakerIsolatesClasses(t *testing.T) {
	br := NewBreakerRegistry(BreakerSettings{
		ConsecutiveFailures: 1,
		OpenTimeout:         time.Minute,
	})

	_ = br.Execute("bad", func() error { return errors.New("boom") })
	if err := br.Execute("bad", func() error { return nil }); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatal("bad class did not trip")
	}

	if err := br.Execute("good", func() error { return nil }); err != nil {
		t.Fatalf("good class affected by bad class: %v", err)
	}
}

// TestBreakerIgnoresCancellation verifies cooperative cancellation never
// counts as a body failure.
func TestBreakerIgnoresCancellation(t *testing.T) {
	br := NewBreakerRegistry(BreakerSettings{
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	})

	for i := 0; i < 10; i++ {
		_ = br.Execute("cancelled", func() error { return context.Canceled })
	}

	if err := br.Execute("cancelled", func() error { return nil }); err != nil {
		t.Fatalf("breaker tripped on cancellations: %v", err)
	}
}

// TestBreakerSettingsDefaults verifies zero settings fall back to
// defaults.
func TestBreakerSettingsDefaults(t *testing.T) {
	br := NewBreakerRegistry(BreakerSettings{})
	def := DefaultBreakerSettings()
	if br.settings.ConsecutiveFailures != def.ConsecutiveFailures {
		t.Errorf("ConsecutiveFailures = %d, want %d", br.settings.ConsecutiveFailures, def.ConsecutiveFailures)
	}
	if br.settings.OpenTimeout != def.OpenTimeout {
		t.Errorf("OpenTimeout = %s, want %s", br.settings.OpenTimeout, def.OpenTimeout)
	}
	if br.settings.HalfOpenRequests != def.HalfOpenRequests {
		t.Errorf("HalfOpenRequests = %d, want %d", br.settings.HalfOpenRequests, def.HalfOpenRequests)
	}
}
