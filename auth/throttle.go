package auth

import (
	"sync"
	"time"
)

// Step is a cooldown applied once Failures unlock failures fall inside the window.
type Step struct {
	Failures int
	Cooldown time.Duration
}

// ThrottleSettings configures a Throttle.
type ThrottleSettings struct {
	Window time.Duration
	// Steps must be sorted by ascending Failures.
	Steps []Step
}

// DefaultThrottleSettings returns the unlock cooldown ladder.
func DefaultThrottleSettings() ThrottleSettings {
	return ThrottleSettings{
		Window: time.Hour,
		Steps: []Step{
			{Failures: 5, Cooldown: 30 * time.Second},
			{Failures: 10, Cooldown: 5 * time.Minute},
			{Failures: 20, Cooldown: 30 * time.Minute},
		},
	}
}

// Throttle tracks recent unlock failures and derives the cooldown they impose.
type Throttle struct {
	settings ThrottleSettings

	mu       sync.Mutex
	failures []time.Time
}

// NewThrottle returns an empty Throttle.
func NewThrottle(settings ThrottleSettings) *Throttle {
	return &Throttle{settings: settings}
}

// Seed loads previously recorded failure times, e.g. from the audit log.
func (t *Throttle) Seed(times []time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, times...)
}

// RecordFailure adds a failure at ts and returns the count inside the window.
func (t *Throttle) RecordFailure(ts time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, ts)
	t.pruneLocked(ts)
	return len(t.failures)
}

// Reset forgets all failures. Called after a successful unlock.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = nil
}

func (t *Throttle) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.settings.Window)
	valid := t.failures[:0]
	for _, ts := range t.failures {
		if !ts.Before(cutoff) {
			valid = append(valid, ts)
		}
	}
	t.failures = valid
}

// Remaining returns how long unlock attempts stay blocked at now. Zero means allowed.
func (t *Throttle) Remaining(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)

	n := len(t.failures)
	var cooldown time.Duration
	for _, s := range t.settings.Steps {
		if n >= s.Failures {
			cooldown = s.Cooldown
		}
	}
	if cooldown == 0 {
		return 0
	}

	var last time.Time
	for _, ts := range t.failures {
		if ts.After(last) {
			last = ts
		}
	}
	if left := last.Add(cooldown).Sub(now); left > 0 {
		return left
	}
	return 0
}
