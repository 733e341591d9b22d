// Package circuit guards external data providers: a provider that keeps
// failing is cut off for a cooldown instead of being hammered on every scan.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState is the circuit state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Config holds breaker thresholds.
type Config struct {
	Enabled             bool          `json:"enabled"`
	MaxConsecutiveFails int           `json:"max_consecutive_fails"`
	Cooldown            time.Duration `json:"cooldown"`
}

// DefaultConfig returns thresholds suited to third-party market APIs.
func DefaultConfig() *Config {
	return &Config{
		Enabled:             true,
		MaxConsecutiveFails: 5,
		Cooldown:            2 * time.Minute,
	}
}

// Breaker is a per-provider circuit breaker. After MaxConsecutiveFails
// failures it opens for Cooldown; the first call after the cooldown probes
// in half-open state and one success closes it again.
type Breaker struct {
	config *Config

	mu               sync.Mutex
	state            BreakerState
	consecutiveFails int
	lastTripTime     time.Time
	tripReason       string

	onTrip  func(reason string)
	onReset func()
}

// New creates a breaker; a nil config uses the defaults.
func New(config *Config) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{config: config, state: StateClosed}
}

// OnTrip registers a callback invoked when the breaker opens.
func (b *Breaker) OnTrip(fn func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = fn
}

// OnReset registers a callback invoked when the breaker closes again.
func (b *Breaker) OnReset(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = fn
}

// Allow reports whether a call may proceed, with the block reason when not.
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		elapsed := time.Since(b.lastTripTime)
		if elapsed < b.config.Cooldown {
			remaining := b.config.Cooldown - elapsed
			return false, fmt.Sprintf("circuit open, cooldown remaining %v (reason: %s)",
				remaining.Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}
	return true, ""
}

// RecordSuccess notes a successful call; in half-open state it closes the
// breaker.
func (b *Breaker) RecordSuccess() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.consecutiveFails = 0
	recovered := b.state == StateHalfOpen
	if recovered {
		b.state = StateClosed
		b.tripReason = ""
	}
	onReset := b.onReset
	b.mu.Unlock()

	if recovered && onReset != nil {
		go onReset()
	}
}

// RecordFailure notes a failed call, tripping the breaker at the threshold
// or immediately when a half-open probe fails.
func (b *Breaker) RecordFailure() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.consecutiveFails++
	var reason string
	switch {
	case b.state == StateHalfOpen:
		reason = "half-open probe failed"
	case b.consecutiveFails >= b.config.MaxConsecutiveFails:
		reason = fmt.Sprintf("consecutive failures: %d", b.consecutiveFails)
	}
	var onTrip func(string)
	if reason != "" {
		b.state = StateOpen
		b.lastTripTime = time.Now()
		b.tripReason = reason
		onTrip = b.onTrip
	}
	b.mu.Unlock()

	if onTrip != nil {
		go onTrip(reason)
	}
}

// ForceReset closes the breaker and clears counters.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveFails = 0
	b.tripReason = ""
	onReset := b.onReset
	b.mu.Unlock()

	if onReset != nil {
		go onReset()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns the current counters for the admin surface.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"state":             string(b.state),
		"consecutive_fails": b.consecutiveFails,
		"trip_reason":       b.tripReason,
		"last_trip_time":    b.lastTripTime,
	}
}
