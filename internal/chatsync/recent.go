package chatsync

import (
	"time"

	"github.com/google/uuid"
)

// recentCache remembers the ids of messages this client just sent so the
// change-feed echo of the same row can be suppressed. Each entry carries its
// own deadline, set at insertion; expiry is checked on lookup rather than by
// timers, which keeps behavior deterministic under test. The cache is
// bounded: when full, the oldest entry is evicted.
//
// Not safe for concurrent use; the owning Session holds its lock around
// every call.
type recentCache struct {
	ttl       time.Duration
	max       int
	now       func() time.Time
	deadlines map[uuid.UUID]time.Time
	order     []uuid.UUID
}

func newRecentCache(ttl time.Duration, max int) *recentCache {
	return &recentCache{
		ttl:       ttl,
		max:       max,
		now:       time.Now,
		deadlines: make(map[uuid.UUID]time.Time),
	}
}

func (c *recentCache) Add(id uuid.UUID) {
	c.expire()
	if _, ok := c.deadlines[id]; ok {
		// Refresh moves the id to the back; expire relies on order being
		// deadline-sorted.
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	} else if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.deadlines, oldest)
	}
	c.order = append(c.order, id)
	c.deadlines[id] = c.now().Add(c.ttl)
}

func (c *recentCache) Contains(id uuid.UUID) bool {
	deadline, ok := c.deadlines[id]
	if !ok {
		return false
	}
	if c.now().After(deadline) {
		c.remove(id)
		return false
	}
	return true
}

func (c *recentCache) expire() {
	now := c.now()
	for len(c.order) > 0 {
		oldest := c.order[0]
		if now.Before(c.deadlines[oldest]) {
			break
		}
		c.remove(oldest)
	}
}

func (c *recentCache) remove(id uuid.UUID) {
	delete(c.deadlines, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
