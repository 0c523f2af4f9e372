package provider

import (
	"sync"
	"time"
)

// BreakerState is the upstream health as seen by a Breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Breaker stops calls to an upstream chat endpoint after repeated
// exhausted retries. Once the cooldown passes, calls go through again; a
// single failure in that window reopens it.
type Breaker struct {
	mu        sync.RWMutex
	streak    int
	threshold int
	cooldown  time.Duration
	openUntil time.Time
	now       func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (b *Breaker) state() BreakerState {
	switch {
	case b.streak < b.threshold:
		return BreakerClosed
	case b.now().Before(b.openUntil):
		return BreakerOpen
	default:
		return BreakerHalfOpen
	}
}

// State reports the current state.
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state()
}

// Open reports whether calls must be refused.
func (b *Breaker) Open() bool {
	return b.State() == BreakerOpen
}

// Success closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.streak = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()
}

// Fail records a failed call. It returns the resulting state.
func (b *Breaker) Fail() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state() == BreakerHalfOpen {
		b.streak = b.threshold
	} else {
		b.streak++
	}
	if b.streak >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
	}
	return b.state()
}
