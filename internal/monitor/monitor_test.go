package monitor

import (
	"testing"
	"time"
)

func TestWindowedCounts(t *testing.T) {
	m := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Record(ClassScan)
	m.Record(ClassScan)
	now = now.Add(6 * time.Minute)
	m.Record(ClassScan)

	counts := m.Counts()
	if counts[ClassScan] != 1 {
		t.Errorf("scan count = %d, want 1 (old entries expired)", counts[ClassScan])
	}
}

func TestFlushHealthAlert(t *testing.T) {
	m := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 9; i++ {
		m.recordFlush()
	}
	m.Record(ClassFlush)

	ok, failed, alert := m.FlushHealth()
	if ok != 9 || failed != 1 {
		t.Fatalf("health = %d ok %d failed", ok, failed)
	}
	// 1 of 10 is exactly the threshold, not over it.
	if alert {
		t.Error("alert tripped at exactly 10%")
	}

	m.Record(ClassFlush)
	if _, _, alert := m.FlushHealth(); !alert {
		t.Error("alert not tripped above 10%")
	}
}

func TestFlushHealthEmptyWindow(t *testing.T) {
	m := New()
	if _, _, alert := m.FlushHealth(); alert {
		t.Error("alert with no flushes at all")
	}
}
