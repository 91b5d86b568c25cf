// Package persistence provides the durable key-value store for scalar
// device settings and counters.
//
// The store holds the small set of values that must survive a restart:
// the telemetry interval, the sample sequence counter, the pending
// queue cursor, and the soil calibration bounds. Values live in a
// single JSON file rewritten through a temporary sibling and a rename,
// so a power loss mid-write leaves the previous file intact.
package persistence
