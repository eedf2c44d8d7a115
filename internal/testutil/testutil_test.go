package testutil

import (
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	clock.Advance(5 * time.Minute)
	if got := clock.Now(); !got.Equal(start.Add(5 * time.Minute)) {
		t.Errorf("after Advance(5m), Now() = %v", got)
	}

	clock.Advance(-time.Minute)
	if got := clock.Now(); !got.Equal(start.Add(4 * time.Minute)) {
		t.Errorf("after Advance(-1m), Now() = %v", got)
	}

	later := start.Add(48 * time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", got, later)
	}
}

func TestTestContext_HasDeadline(t *testing.T) {
	ctx := TestContext(t)

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("TestContext should have a deadline")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 6*time.Second {
		t.Errorf("deadline should be ~5s from now, got %v", remaining)
	}
}
