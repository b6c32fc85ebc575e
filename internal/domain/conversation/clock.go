package conversation

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing microsecond timestamps, so two turns
// recorded by one process never share a creation time.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock creates a Clock over now; nil means time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns a UTC microsecond timestamp strictly after every earlier result.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// After returns a timestamp strictly after both prev and every earlier result.
func (c *Clock) After(prev time.Time) time.Time {
	t := c.Now()
	if !t.After(prev) {
		c.mu.Lock()
		t = prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
		if t.After(c.last) {
			c.last = t
		}
		c.mu.Unlock()
	}
	return t
}
