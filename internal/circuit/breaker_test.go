package circuit

import (
	"testing"
	"time"
)

func testBreaker(cooldown time.Duration) *Breaker {
	return New(&Config{
		Enabled:             true,
		MaxConsecutiveFails: 3,
		Cooldown:            cooldown,
	})
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := testBreaker(time.Hour)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if ok, _ := b.Allow(); !ok {
			t.Fatalf("open after %d failures, threshold is 3", i+1)
		}
	}
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
	if ok, reason := b.Allow(); ok || reason == "" {
		t.Errorf("Allow = %v %q, want blocked with reason", ok, reason)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := testBreaker(time.Hour)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after interleaved success", b.State())
	}
}

func TestHalfOpenProbe(t *testing.T) {
	b := testBreaker(time.Nanosecond)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(time.Millisecond)

	// Cooldown elapsed: the next call probes in half-open.
	if ok, _ := b.Allow(); !ok {
		t.Fatal("probe not allowed after cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half_open", b.State())
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after probe success", b.State())
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := testBreaker(time.Nanosecond)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(time.Millisecond)
	b.Allow()

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("state = %s, want open after probe failure", b.State())
	}
}

func TestDisabledBreakerAlwaysAllows(t *testing.T) {
	b := New(&Config{Enabled: false, MaxConsecutiveFails: 1, Cooldown: time.Hour})
	b.RecordFailure()
	b.RecordFailure()
	if ok, _ := b.Allow(); !ok {
		t.Error("disabled breaker blocked a call")
	}
}

func TestForceReset(t *testing.T) {
	b := testBreaker(time.Hour)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	b.ForceReset()
	if ok, _ := b.Allow(); !ok {
		t.Error("blocked after force reset")
	}
}
