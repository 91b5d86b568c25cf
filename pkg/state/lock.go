package state

import "time"

// TimedLock is a mutex whose acquisition is bounded by a timeout.
// Callers that fail to acquire must fall back, never retry in place.
type TimedLock struct {
	ch chan struct{}
}

// NewTimedLock creates an unlocked TimedLock.
func NewTimedLock() *TimedLock {
	return &TimedLock{ch: make(chan struct{}, 1)}
}

// Acquire attempts to take the lock, waiting at most timeout.
// Returns true if the lock was acquired.
func (l *TimedLock) Acquire(timeout time.Duration) bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
	}

	if timeout <= 0 {
		return false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case l.ch <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

// Release releases the lock. Must only be called after a successful
// Acquire.
func (l *TimedLock) Release() {
	<-l.ch
}
