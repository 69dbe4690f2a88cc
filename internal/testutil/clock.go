package testutil

import (
	"sync"
	"time"
)

// SettableClock is a wall clock that only moves when a test moves it.
//
// It satisfies engine.Clock. Poller windows and the dedup lookback are
// driven from it so scenarios can step through time deterministically.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SettableClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewSettableClock creates a clock frozen at start (converted to UTC).
func NewSettableClock(start time.Time) *SettableClock {
	return &SettableClock{now: start.UTC()}
}

// Now returns the current frozen time.
func (c *SettableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *SettableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d and returns the new time.
// A negative d moves it back.
func (c *SettableClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
