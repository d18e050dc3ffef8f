package resilience

import (
	"testing"
	"time"
)

func TestBackoffPolicy_NeverZero(t *testing.T) {
	p := NewBackoffPolicy(time.Nanosecond, time.Second, 0, 0, 1)
	for attempt := 1; attempt <= 10; attempt++ {
		if d := p.Delay(attempt, FailureThrottled); d <= 0 {
			t.Errorf("attempt %d: delay %v, want > 0", attempt, d)
		}
	}
}

func TestBackoffPolicy_MonotonicWithoutJitter(t *testing.T) {
	p := NewBackoffPolicy(time.Second, time.Minute, 0, 0, 1)
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := p.Delay(attempt, FailureThrottled)
		if d < prev {
			t.Errorf("attempt %d: delay %v < previous %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoffPolicy_CappedAtCeiling(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 8*time.Second, 0, 0, 1)
	if d := p.Delay(20, FailureThrottled); d != 8*time.Second {
		t.Errorf("expected cap 8s, got %v", d)
	}
}

func TestBackoffPolicy_NetworkPenalty(t *testing.T) {
	p := NewBackoffPolicy(time.Second, time.Minute, 0, 5*time.Second, 1)
	throttled := p.Delay(1, FailureThrottled)
	network := p.Delay(1, FailureNetwork)
	if network != throttled+5*time.Second {
		t.Errorf("expected network delay %v, got %v", throttled+5*time.Second, network)
	}
}

func TestBackoffPolicy_JitterBounded(t *testing.T) {
	base := time.Second
	jitterMax := 500 * time.Millisecond
	p := NewBackoffPolicy(base, time.Minute, jitterMax, 0, 42)
	for i := 0; i < 100; i++ {
		d := p.Delay(1, FailureThrottled)
		if d < base || d >= base+jitterMax {
			t.Fatalf("delay %v outside [%v, %v)", d, base, base+jitterMax)
		}
	}
}

func TestBackoffPolicy_DeterministicWithSeed(t *testing.T) {
	a := NewBackoffPolicy(time.Second, time.Minute, time.Second, 0, 7)
	b := NewBackoffPolicy(time.Second, time.Minute, time.Second, 0, 7)
	for i := 1; i <= 5; i++ {
		if da, db := a.Delay(i, FailureThrottled), b.Delay(i, FailureThrottled); da != db {
			t.Fatalf("attempt %d: %v != %v for identical seeds", i, da, db)
		}
	}
}

func TestBackoffPolicy_Defaults(t *testing.T) {
	p := NewBackoffPolicy(0, 0, -1, -1, 1)
	if p.Base != 30*time.Second {
		t.Errorf("default base = %v", p.Base)
	}
	if p.Cap != 10*time.Minute {
		t.Errorf("default cap = %v", p.Cap)
	}
	if p.JitterMax != 0 || p.NetworkPenalty != 0 {
		t.Errorf("negative knobs should clamp to 0")
	}
}
