package tick

import (
	"sync"
	"time"
)

// Reached reports whether deadline has passed at now.
// Both values are wrapping millisecond counters; the comparison is
// correct across a single wrap of the counter.
func Reached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// Until returns the number of milliseconds from now until deadline.
// Returns 0 if the deadline has already been reached.
func Until(now, deadline uint32) uint32 {
	if Reached(now, deadline) {
		return 0
	}
	return deadline - now
}

// Clock provides the wrapping millisecond counter.
// Implementations must be safe for concurrent use.
type Clock interface {
	// NowMs returns the current value of the millisecond counter.
	// The counter wraps past the uint32 maximum; callers must only
	// compare values through Reached/Until.
	NowMs() uint32
}

// SystemClock derives the counter from the process monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock starting at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMs returns milliseconds since the clock was created, truncated to
// the wrapping counter width.
func (c *SystemClock) NowMs() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock is a test clock advanced by hand.
// It is safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now uint32
}

// NewManualClock creates a manual clock starting at now.
func NewManualClock(now uint32) *ManualClock {
	return &ManualClock{now: now}
}

// NowMs returns the current counter value.
func (c *ManualClock) NowMs() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the counter forward by ms, wrapping naturally.
func (c *ManualClock) Advance(ms uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// Set forces the counter to a specific value.
func (c *ManualClock) Set(now uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Compile-time interface satisfaction checks.
var (
	_ Clock = (*SystemClock)(nil)
	_ Clock = (*ManualClock)(nil)
)
