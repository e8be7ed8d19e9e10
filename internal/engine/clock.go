package engine

import "sync/atomic"

// Clock counts frames. Frame 0 is before the first Tick; every Tick
// advances the clock by one before stepping tasks.
//
// Reads are safe from any goroutine so that metrics and the serve loop can
// observe progress, but only the frame goroutine calls Next.
type Clock struct {
	frame atomic.Int64
}

// NewClock creates a new clock at frame 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a specific frame.
// Used when resuming from a snapshot.
func NewClockAt(frame int64) *Clock {
	c := &Clock{}
	c.frame.Store(frame)
	return c
}

// Next advances to and returns the next frame.
func (c *Clock) Next() int64 {
	return c.frame.Add(1)
}

// Current returns the current frame without advancing.
func (c *Clock) Current() int64 {
	return c.frame.Load()
}
