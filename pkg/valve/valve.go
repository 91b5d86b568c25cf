package valve

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/agrosmart/edge-go/pkg/log"
	"github.com/agrosmart/edge-go/pkg/state"
	"github.com/agrosmart/edge-go/pkg/tick"
)

// Safety constants.
const (
	// MaxOpenSeconds is the hard cap on a single open duration.
	// Requests beyond it are clamped, never honored.
	MaxOpenSeconds = 900

	// LockWait is how long interactions wait for the valve lock
	// before falling back to a forced close.
	LockWait = 50 * time.Millisecond

	// DebugEveryMs is the cadence of remaining-time reports while
	// the valve is open.
	DebugEveryMs = 5000
)

// ErrLockTimeout is returned when the valve lock could not be acquired
// in time. The physical output has already been driven low when this
// error is returned.
var ErrLockTimeout = errors.New("valve lock timeout, forced close")

// Output drives the physical valve pin.
// Set must be callable from any goroutine and must not block.
type Output interface {
	// Set drives the output: true opens the valve, false closes it.
	Set(open bool)
}

// Controller enforces the capped-open-duration guarantee.
type Controller struct {
	lock  *state.TimedLock
	out   Output
	clock tick.Clock
	log   log.Logger

	// forced is set when a lock-timeout path drove the output low
	// behind the state machine's back. The next interaction that
	// wins the lock reconciles and clears it.
	forced atomic.Bool

	// Guarded by lock.
	open        bool
	deadlineSet bool
	deadlineMs  uint32
	lastDebugMs uint32
	commandID   string

	// onSessionEnd is called after a watering session ends, with the
	// owning command id and the terminal reason. Called outside the
	// lock.
	onSessionEnd func(commandID, reason string)

	// onFailsafe is called once per failsafe trip: a lock-timeout
	// forced close or an invariant repair. Must not block.
	onFailsafe func()
}

// NewController creates a controller and unconditionally resets the
// valve to closed. Safety bias overrides continuity: whatever state a
// previous run persisted, a fresh boot starts with the output low.
func NewController(out Output, clock tick.Clock, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	c := &Controller{
		lock:  state.NewTimedLock(),
		out:   out,
		clock: clock,
		log:   logger,
	}
	out.Set(false)
	return c
}

// OnSessionEnd registers the callback fired when a watering session
// ends (timeout, explicit stop, or forced close). The callback receives
// the originating command id even when the close was triggered by a
// later command or by the supervisor. Must be called during setup,
// before the controller is shared between goroutines.
func (c *Controller) OnSessionEnd(fn func(commandID, reason string)) {
	c.onSessionEnd = fn
}

// OnFailsafe registers the callback fired each time the failsafe path
// forces the output low. The reconciliation that follows a forced
// close does not fire it again. Must be called during setup, before
// the controller is shared between goroutines.
func (c *Controller) OnFailsafe(fn func()) {
	c.onFailsafe = fn
}

func (c *Controller) failsafeTripped() {
	if c.onFailsafe != nil {
		c.onFailsafe()
	}
}

// ClampDuration bounds a requested duration to [0, MaxOpenSeconds].
func ClampDuration(requestedS uint32) uint32 {
	if requestedS > MaxOpenSeconds {
		return MaxOpenSeconds
	}
	return requestedS
}

// Open opens the valve for the clamped duration and records commandID
// as the session owner. A clamped duration of zero is equivalent to
// Close. Returns the clamped duration actually applied.
//
// If a session was already running it ends with reason "stopped"
// before the new one starts.
func (c *Controller) Open(durationS uint32, commandID string) (uint32, error) {
	safeS := ClampDuration(durationS)
	if safeS == 0 {
		return 0, c.Close("stopped")
	}

	if !c.lock.Acquire(LockWait) {
		c.forceClose("open")
		return 0, ErrLockTimeout
	}

	end := c.reconcileForcedLocked()
	if end == nil && c.open && c.commandID != "" {
		prev := c.commandID
		end = func() {
			if c.onSessionEnd != nil {
				c.onSessionEnd(prev, "stopped")
			}
		}
	}

	now := c.clock.NowMs()
	c.out.Set(true)
	c.open = true
	c.deadlineMs = now + safeS*1000 // wraps; compared wrap-safe
	c.deadlineSet = true
	c.lastDebugMs = now
	c.commandID = commandID

	if safeS < durationS {
		c.log.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryValve,
			Severity:  log.SeverityWarning,
			Valve:     &log.ValveEvent{Open: true, DurationS: safeS, CommandID: commandID},
			Error:     &log.ErrorEventData{Message: "requested duration exceeds hard cap, clamped", Op: "open"},
		})
	} else {
		c.log.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryValve,
			Valve:     &log.ValveEvent{Open: true, DurationS: safeS, CommandID: commandID},
		})
	}

	c.lock.Release()
	if end != nil {
		end()
	}
	return safeS, nil
}

// Close closes the valve with the given terminal reason. Idempotent:
// closing a closed valve is a no-op.
func (c *Controller) Close(reason string) error {
	if !c.lock.Acquire(LockWait) {
		c.forceClose("close")
		return ErrLockTimeout
	}

	end := c.reconcileForcedLocked()
	if end == nil {
		end = c.closeLocked(reason, false)
	}
	c.lock.Release()

	if end != nil {
		end()
	}
	return nil
}

// Supervise runs one supervision tick. Call it on every scheduler pass
// of the network/storage loop.
//
// Closed valve: no-op. Open valve: repairs the open-without-deadline
// invariant violation by force-closing, closes on a reached deadline
// with reason "timeout", and otherwise reports remaining time at the
// debug cadence.
func (c *Controller) Supervise() {
	if !c.lock.Acquire(LockWait) {
		// Contention on the safety path resolves to closed.
		c.forceClose("supervise")
		return
	}

	var end func()
	switch {
	case c.forced.Load():
		end = c.reconcileForcedLocked()

	case !c.open:
		// Nothing to supervise.

	case !c.deadlineSet:
		// Invariant violation: open with no deadline. Fail safe.
		c.log.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryValve,
			Severity:  log.SeverityFailsafe,
			Valve:     &log.ValveEvent{Open: false, CommandID: c.commandID, Forced: true},
			Error:     &log.ErrorEventData{Message: "valve open without deadline", Op: "supervise"},
		})
		c.failsafeTripped()
		end = c.closeLocked("failsafe", true)

	default:
		now := c.clock.NowMs()
		if tick.Reached(now, c.deadlineMs) {
			end = c.closeLocked("timeout", false)
		} else if tick.Reached(now, c.lastDebugMs+DebugEveryMs) {
			c.log.Log(log.Event{
				Timestamp: time.Now(),
				Category:  log.CategoryValve,
				Valve: &log.ValveEvent{
					Open:        true,
					RemainingMs: tick.Until(now, c.deadlineMs),
					CommandID:   c.commandID,
				},
			})
			c.lastDebugMs = now
		}
	}

	c.lock.Release()
	if end != nil {
		end()
	}
}

// State returns a snapshot of the valve state. ok is false when the
// lock could not be acquired; callers use their last known copy.
func (c *Controller) State(timeout time.Duration) (open bool, remainingMs uint32, commandID string, ok bool) {
	if !c.lock.Acquire(timeout) {
		return false, 0, "", false
	}
	defer c.lock.Release()

	if !c.open || !c.deadlineSet {
		return c.open, 0, c.commandID, true
	}
	return true, tick.Until(c.clock.NowMs(), c.deadlineMs), c.commandID, true
}

// closeLocked clears the session under the lock and returns the
// deferred session-end callback, or nil when there was no session.
func (c *Controller) closeLocked(reason string, forced bool) func() {
	wasOpen := c.open
	owner := c.commandID

	c.out.Set(false)
	c.open = false
	c.deadlineSet = false
	c.deadlineMs = 0
	c.lastDebugMs = 0
	c.commandID = ""

	if !wasOpen {
		return nil
	}

	sev := log.SeverityInfo
	if forced {
		sev = log.SeverityFailsafe
	}
	c.log.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryValve,
		Severity:  sev,
		Valve:     &log.ValveEvent{Open: false, CommandID: owner, Forced: forced},
	})

	cb := c.onSessionEnd
	if cb == nil || owner == "" {
		return nil
	}
	return func() { cb(owner, reason) }
}

// forceClose drives the output low without the lock. The state machine
// is reconciled by the next interaction that wins the lock.
func (c *Controller) forceClose(op string) {
	c.out.Set(false)
	c.forced.Store(true)
	c.failsafeTripped()
	c.log.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryValve,
		Severity:  log.SeverityFailsafe,
		Valve:     &log.ValveEvent{Open: false, Forced: true},
		Error:     &log.ErrorEventData{Message: "valve lock busy, output forced low", Op: op},
	})
}

// reconcileForcedLocked folds an out-of-band forced close back into the
// state machine. Returns the deferred session-end callback, or nil.
func (c *Controller) reconcileForcedLocked() func() {
	if !c.forced.Swap(false) {
		return nil
	}
	if !c.open {
		return nil
	}
	return c.closeLocked("failsafe", true)
}
