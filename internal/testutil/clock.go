package testutil

import (
	"sync"
	"time"

	"launcher-core/internal/launcher"
)

// Epoch is the instant every FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a launcher.Clock that only moves when a test moves it, so
// token lifetimes, join windows and sweep grace periods can be crossed
// without sleeping.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ launcher.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to Epoch.
func FixedClock() *StubClock {
	return NewStubClock(Epoch)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Outlive moves the clock one second past ttl from now. Anything stamped at
// the current time with a lifetime of ttl is expired afterwards.
func (c *StubClock) Outlive(ttl time.Duration) {
	c.Advance(ttl + time.Second)
}
