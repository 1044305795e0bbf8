// Package backoff implements the ExpBackoff value described for the poll
// period and extractor cooldown: a current wait that backs off
// exponentially on failure and decays geometrically on success, shared by
// the metadata extractor and the watcher poll loop.
package backoff

import (
	"sync"
	"time"
)

// ExpBackoff tracks an adaptive wait duration bounded to [min, max]. The
// zero value is not usable; construct with New.
type ExpBackoff struct {
	mu sync.Mutex

	current time.Duration
	min     time.Duration
	max     time.Duration
	factor  float64 // multiplier applied by Backoff.
	decay   float64 // multiplier applied by Cooldown, < 1.

	// nextAt is an explicit server-provided deadline (from Retry-After or
	// X-RateLimit-Reset) that overrides the computed backoff until it
	// passes.
	nextAt time.Time
}

// New constructs an ExpBackoff starting at min, doubling on Backoff up to
// max, and decaying by half back towards min on Cooldown.
func New(min, max time.Duration) *ExpBackoff {
	return &ExpBackoff{
		current: min,
		min:     min,
		max:     max,
		factor:  2.0,
		decay:   0.5,
	}
}

// Current returns the current wait duration, clamped to any outstanding
// server-provided deadline.
func (b *ExpBackoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

func (b *ExpBackoff) currentLocked() time.Duration {
	if !b.nextAt.IsZero() {
		if d := time.Until(b.nextAt); d > b.current {
			return d
		}
	}
	return b.current
}

// Backoff doubles the current wait, capped at max, and returns the new
// value. Call on rate-limit or transient failure.
func (b *ExpBackoff) Backoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := time.Duration(float64(b.current) * b.factor)
	if next > b.max {
		next = b.max
	}
	b.current = next
	return b.currentLocked()
}

// Cooldown decays the current wait geometrically towards min, returning the
// new value. Call after a successful poll.
func (b *ExpBackoff) Cooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := time.Duration(float64(b.current) * b.decay)
	if next < b.min {
		next = b.min
	}
	b.current = next
	b.nextAt = time.Time{}
	return b.currentLocked()
}

// SetNextRequestAt records a server-provided deadline (parsed from
// Retry-After or X-RateLimit-Reset) before which requests should not be
// attempted, regardless of the computed backoff.
func (b *ExpBackoff) SetNextRequestAt(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextAt = t
}

// Reset returns the backoff to its minimum, clearing any server deadline.
func (b *ExpBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.min
	b.nextAt = time.Time{}
}
