// Package testutil holds deterministic helpers for cache tests: a manual
// clock and a byte stream that decodes fuzz input into cache operations.
package testutil

import (
	"sync/atomic"
	"time"
)

// Clock is a manually advanced clock, safe for concurrent use. It satisfies
// bucketcache.Clock.
type Clock struct {
	nanos atomic.Int64
}

// NewClock returns a clock initialized to a fixed UTC start time.
func NewClock() *Clock {
	c := &Clock{}
	c.nanos.Store(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).UnixNano())

	return c
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).UTC()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	return time.Unix(0, c.nanos.Add(int64(d))).UTC()
}
