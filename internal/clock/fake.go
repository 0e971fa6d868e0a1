package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Safe for concurrent
// use so worker goroutines can read it while the test advances it.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock pins the clock at t, normalized to UTC.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
