package reconcile

import "sync"

// Clock issues logical timestamps for local writes.
type Clock interface {
	// Tick returns a timestamp greater than every one issued or observed so far.
	Tick() int64
	// Observe folds a server timestamp into the clock.
	Observe(ts int64)
}

// LamportClock keeps local writes ordered after every server timestamp the
// session has seen, so a local move always outranks the broadcasts it follows.
type LamportClock struct {
	mu  sync.Mutex
	now int64
}

func (c *LamportClock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

func (c *LamportClock) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.now {
		c.now = ts
	}
}
