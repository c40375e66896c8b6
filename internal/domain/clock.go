package domain

import "sync/atomic"

// Clock is the monotonic logical clock that stamps element versions.
//
// Every creation and update takes a fresh value from Next. Loading observes
// the versions it replays so later mutations stay ahead of them.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next version.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the last version handed out or observed.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}

// Observe advances the clock to v if it is behind.
func (c *Clock) Observe(v uint64) {
	for {
		cur := c.seq.Load()
		if v <= cur || c.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}
