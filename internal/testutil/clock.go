package testutil

import "sync"

// ManualClock is a Signer whose time only moves when a test moves it.
//
// Now returns the current value without advancing, so every action written
// between two Set calls carries the same timestamp.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu     sync.Mutex
	author string
	now    int64
}

// NewManualClock creates a clock for author starting at start.
func NewManualClock(author string, start int64) *ManualClock {
	return &ManualClock{author: author, now: start}
}

// Author returns the fixed writer identity.
func (c *ManualClock) Author() string {
	return c.author
}

// Now returns the current timestamp.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ts. Moving backwards is allowed: writer clocks skew.
func (c *ManualClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

// Advance moves the clock forward by d and returns the new value.
func (c *ManualClock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}
