// Package valve implements the actuator safety controller for the
// irrigation valve.
//
// The controller is a two-state machine (closed, open-with-deadline)
// with one hard guarantee: the valve can never remain open
// indefinitely. Every open records a close deadline capped at
// MaxOpenSeconds regardless of what was requested, a periodic
// supervisor closes the valve when the deadline passes, and on boot
// the state is unconditionally reset to closed.
//
// # Contention policy
//
// Every interaction with the state acquires a dedicated lock with a
// short bounded timeout. When the lock cannot be acquired in time the
// caller does not retry or queue the intent: it drives the physical
// output low directly, bypassing the state machine, and records a
// failsafe event. Under contention the device always errs toward
// "valve closed", never toward "valve stays open by default". The
// next interaction that does win the lock reconciles the state machine
// with the forced close and emits the terminal acknowledgement for the
// interrupted session.
//
// Deadlines are wrapping millisecond counters compared through
// pkg/tick; an open that straddles the counter wrap still closes on
// time.
package valve
