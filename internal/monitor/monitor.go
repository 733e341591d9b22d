// Package monitor keeps sliding-window error counts per failure class and
// raises a flush-health alert when too many batches are being discarded.
package monitor

import (
	"sync"
	"time"

	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
)

const (
	window = 5 * time.Minute
	// Fraction of failed flushes inside the window that trips the alert.
	flushAlertRatio = 0.10
)

// Error classes tracked in the window.
const (
	ClassStream = "stream"
	ClassFlush  = "flush"
	ClassScan   = "scan"
	ClassOther  = "other"
)

// Monitor accumulates timestamped occurrences per class. All methods are
// safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	flushes []time.Time

	now    func() time.Time
	logger *logging.Logger
}

// New creates a monitor.
func New() *Monitor {
	return &Monitor{
		hits:   make(map[string][]time.Time),
		now:    time.Now,
		logger: logging.WithComponent("monitor"),
	}
}

// Attach subscribes the monitor to the event bus.
func (m *Monitor) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventStreamLost, func(events.Event) { m.Record(ClassStream) })
	bus.Subscribe(events.EventFlushError, func(events.Event) { m.Record(ClassFlush) })
	bus.Subscribe(events.EventScanFailed, func(events.Event) { m.Record(ClassScan) })
	bus.Subscribe(events.EventError, func(events.Event) { m.Record(ClassOther) })
	bus.Subscribe(events.EventFlushed, func(events.Event) { m.recordFlush() })
}

// Record notes one occurrence in a class.
func (m *Monitor) Record(class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[class] = appendTrimmed(m.hits[class], m.now())
}

func (m *Monitor) recordFlush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes = appendTrimmed(m.flushes, m.now())
}

// Counts returns per-class occurrences within the window.
func (m *Monitor) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-window)
	out := make(map[string]int, len(m.hits))
	for class, times := range m.hits {
		m.hits[class] = trim(times, cutoff)
		out[class] = len(m.hits[class])
	}
	return out
}

// FlushHealth reports windowed flush counts and whether the failure ratio
// trips the alert.
func (m *Monitor) FlushHealth() (ok, failed int, alert bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-window)
	m.flushes = trim(m.flushes, cutoff)
	m.hits[ClassFlush] = trim(m.hits[ClassFlush], cutoff)

	ok = len(m.flushes)
	failed = len(m.hits[ClassFlush])
	total := ok + failed
	alert = total > 0 && float64(failed)/float64(total) > flushAlertRatio
	return ok, failed, alert
}

func appendTrimmed(times []time.Time, t time.Time) []time.Time {
	return append(trim(times, t.Add(-window)), t)
}

func trim(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}
