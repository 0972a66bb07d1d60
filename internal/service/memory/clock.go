package memory

import (
	"sync"
	"time"

	"github.com/sandevgo/brain/internal/core"
)

// monotonicClock hands out strictly increasing UTC timestamps with
// microsecond resolution, the finest PostgreSQL timestamptz keeps.
type monotonicClock struct {
	mu   sync.Mutex
	now  core.Clock
	last time.Time
}

func newMonotonicClock(now core.Clock) *monotonicClock {
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Next() time.Time {
	t := c.now().UTC().Truncate(time.Microsecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Observe moves the clock past a timestamp loaded from storage.
func (c *monotonicClock) Observe(t time.Time) {
	t = t.UTC().Truncate(time.Microsecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t
	}
}
