// Package state provides bounded-wait locking and the shared state
// cells the controller's loops exchange data through.
//
// Nothing in the controller blocks indefinitely on a lock: every
// acquisition carries a timeout and every timeout has a defined
// fallback (use a stale copy, skip the frame, drop the sample, force
// the valve closed). TimedLock is the primitive enforcing that
// discipline; the cells wrap it with typed accessors so no code
// outside this package touches raw fields.
package state
