package circuitbreaker

import (
	"testing"
	"time"
)

const hookURL = "http://example.com/hook"

// newTestBreaker returns a breaker on a controllable clock and a function
// to advance it.
func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, func(time.Duration)) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := New(threshold, cooldown)
	cb.clock = func() time.Time { return now }
	advance := func(d time.Duration) { now = now.Add(d) }
	return cb, advance
}

func failN(cb *CircuitBreaker, url string, n int) {
	for i := 0; i < n; i++ {
		cb.RecordFailure(url)
	}
}

func TestAllow_UnknownURL(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("unknown url should be allowed, got %v", err)
	}
}

func TestAllow_BelowThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	failN(cb, hookURL, 2)
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("below threshold should be allowed, got %v", err)
	}
}

func TestAllow_AtThresholdOpens(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	failN(cb, hookURL, 3)
	if err := cb.Allow(hookURL); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestAllow_SingleProbeAfterCooldown(t *testing.T) {
	cb, advance := newTestBreaker(3, 5*time.Second)
	failN(cb, hookURL, 3)
	advance(5 * time.Second)

	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("probe should be allowed after cooldown, got %v", err)
	}
	if err := cb.Allow(hookURL); err != ErrCircuitOpen {
		t.Fatalf("second request during probe should be rejected, got %v", err)
	}
}

func TestProbeSuccess_Closes(t *testing.T) {
	cb, advance := newTestBreaker(3, 5*time.Second)
	failN(cb, hookURL, 3)
	advance(5 * time.Second)

	cb.Allow(hookURL)
	cb.RecordSuccess(hookURL)

	// Fully reset: a fresh failure streak is needed to open again.
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("expected closed circuit after probe success, got %v", err)
	}
	failN(cb, hookURL, 2)
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("two failures after reset should stay closed, got %v", err)
	}
}

func TestProbeFailure_ReOpens(t *testing.T) {
	cb, advance := newTestBreaker(3, 5*time.Second)
	failN(cb, hookURL, 3)
	advance(5 * time.Second)

	cb.Allow(hookURL)
	cb.RecordFailure(hookURL)

	if err := cb.Allow(hookURL); err != ErrCircuitOpen {
		t.Fatalf("expected re-opened circuit after probe failure, got %v", err)
	}

	// And the new suspension runs a full cooldown from the probe failure.
	advance(5 * time.Second)
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("expected a new probe after second cooldown, got %v", err)
	}
}

func TestRecordSuccess_UnknownURL(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	cb.RecordSuccess(hookURL)
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("expected allowed, got %v", err)
	}
}

func TestDestinationsIndependent(t *testing.T) {
	cb, _ := newTestBreaker(2, 5*time.Second)
	failN(cb, "http://a.com/hook", 2)

	if err := cb.Allow("http://a.com/hook"); err != ErrCircuitOpen {
		t.Fatalf("expected a.com open, got %v", err)
	}
	if err := cb.Allow("http://b.com/hook"); err != nil {
		t.Fatalf("expected b.com allowed, got %v", err)
	}
}
