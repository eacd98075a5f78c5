package searcher

// Clock is the monotonic logical clock that stamps pool insertions.
//
// Both pools of a searcher share one Clock, so insertion sequences are
// globally unique and "longest waiting" is well defined. Replaying the same
// notifications yields the same sequences. Like the searcher, a Clock is
// not safe for concurrent use.
type Clock struct {
	seq int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq
}
