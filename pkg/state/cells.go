package state

import (
	"time"

	"github.com/agrosmart/edge-go/pkg/telemetry"
)

// Default acquisition timeouts, mirroring the relative priorities of
// the loops touching each cell.
const (
	// SampleWriteTimeout bounds the acquisition loop's update.
	SampleWriteTimeout = 100 * time.Millisecond

	// SampleReadTimeout bounds the presentation loop's read; a miss
	// means the frame is skipped.
	SampleReadTimeout = 50 * time.Millisecond

	// FlagTimeout bounds status flag reads and writes.
	FlagTimeout = 10 * time.Millisecond
)

// SampleCell holds the latest sample for the presentation loop.
type SampleCell struct {
	lock   *TimedLock
	sample telemetry.Sample
	valid  bool
}

// NewSampleCell creates an empty cell.
func NewSampleCell() *SampleCell {
	return &SampleCell{lock: NewTimedLock()}
}

// Set stores a new latest sample. Returns false if the lock could not
// be acquired in time; the update is skipped, not queued.
func (c *SampleCell) Set(s telemetry.Sample, timeout time.Duration) bool {
	if !c.lock.Acquire(timeout) {
		return false
	}
	defer c.lock.Release()
	c.sample = s
	c.valid = true
	return true
}

// Get returns the latest sample. ok is false when no sample has been
// stored yet or the lock could not be acquired in time.
func (c *SampleCell) Get(timeout time.Duration) (s telemetry.Sample, ok bool) {
	if !c.lock.Acquire(timeout) {
		return telemetry.Sample{}, false
	}
	defer c.lock.Release()
	return c.sample, c.valid
}

// Status is the connectivity/health snapshot shared between the
// network loop (writer) and the presentation loop (reader).
type Status struct {
	LinkConnected   bool
	BrokerConnected bool
	StorageHealthy  bool
	TimeSynced      bool
	ValveOpen       bool
}

// StatusCell holds the current Status behind a timed lock.
type StatusCell struct {
	lock   *TimedLock
	status Status
}

// NewStatusCell creates a cell with all flags false.
func NewStatusCell() *StatusCell {
	return &StatusCell{lock: NewTimedLock()}
}

// Update applies fn to the current status. Returns false if the lock
// could not be acquired in time; the update is skipped.
func (c *StatusCell) Update(timeout time.Duration, fn func(*Status)) bool {
	if !c.lock.Acquire(timeout) {
		return false
	}
	defer c.lock.Release()
	fn(&c.status)
	return true
}

// Get returns a copy of the current status. ok is false when the lock
// could not be acquired in time; the caller uses its last known copy.
func (c *StatusCell) Get(timeout time.Duration) (s Status, ok bool) {
	if !c.lock.Acquire(timeout) {
		return Status{}, false
	}
	defer c.lock.Release()
	return c.status, true
}
