package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a FakeClock reports.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a deterministic time source for tests.
//
// Each call to Now returns the previous instant plus Step, starting at Epoch.
// Pass clock.Now to build.WithNow to get reproducible event timestamps.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu    sync.Mutex
	step  time.Duration
	calls int64
}

// NewFakeClock creates a clock advancing by step on every call to Now.
// A zero step yields Epoch forever.
func NewFakeClock(step time.Duration) *FakeClock {
	return &FakeClock{step: step}
}

// Now returns the next instant. The first call returns Epoch.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many times Now has been called.
func (c *FakeClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock. The next call to Now returns Epoch.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
