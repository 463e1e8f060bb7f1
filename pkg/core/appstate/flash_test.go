package appstate

import (
	"testing"
	"time"
)

func TestFlash_AutoDismissAfterDuration(t *testing.T) {
	clock := &manualClock{}
	f := NewFlash(clock, 2*time.Second)

	f.Show("+50 XP")
	if n := f.Current(); !n.Visible || n.Message != "+50 XP" {
		t.Fatalf("Current() = %+v", n)
	}
	clock.Advance(1999 * time.Millisecond)
	if !f.Current().Visible {
		t.Fatalf("hidden too early")
	}
	clock.Advance(time.Millisecond)
	if f.Current().Visible {
		t.Fatalf("still visible after 2000ms")
	}
}

func TestFlash_ReplacementRestartsTimer(t *testing.T) {
	clock := &manualClock{}
	f := NewFlash(clock, 2*time.Second)

	f.Show("first")
	clock.Advance(1500 * time.Millisecond)
	f.Show("second")

	// The first timer would have fired here.
	clock.Advance(600 * time.Millisecond)
	if n := f.Current(); !n.Visible || n.Message != "second" {
		t.Fatalf("replacement hidden by stale timer: %+v", n)
	}
	clock.Advance(1400 * time.Millisecond)
	if f.Current().Visible {
		t.Fatalf("replacement not hidden after its own 2000ms")
	}
}

func TestFlash_DismissCancelsTimer(t *testing.T) {
	clock := &manualClock{}
	f := NewFlash(clock, 2*time.Second)

	f.Show("x")
	f.Dismiss()
	if f.Current().Visible {
		t.Fatalf("visible after Dismiss")
	}
	if clock.pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", clock.pending())
	}
}

func TestFlash_StaleTimerCallbackIgnored(t *testing.T) {
	clock := &manualClock{}
	f := NewFlash(clock, time.Second)

	f.Show("a")
	gen := f.gen
	f.Show("b")
	// Simulate the old timer racing past Stop.
	f.expire(gen)
	if n := f.Current(); !n.Visible || n.Message != "b" {
		t.Fatalf("stale expire affected newer notice: %+v", n)
	}
}
