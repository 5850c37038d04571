package build

import "sync/atomic"

// eventClock stamps runner events with a strictly increasing sequence number.
//
// Emission already happens under the Runner's lock; the atomic keeps
// Current() readable without it.
type eventClock struct {
	seq atomic.Int64
}

// next returns the next sequence number. The first call returns 1.
func (c *eventClock) next() int64 {
	return c.seq.Add(1)
}

// current returns the last issued sequence number without incrementing.
func (c *eventClock) current() int64 {
	return c.seq.Load()
}
