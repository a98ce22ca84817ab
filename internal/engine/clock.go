package engine

import "sync/atomic"

// Clock issues strictly increasing sequence numbers. Observers are stamped
// at registration time, and the scheduler orders re-evaluation within a
// turn by stamp, so identical input always re-renders in the same order.
//
// Thread-safety: atomic, though the runtime's single-writer design means
// only the update turn normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
