// Package tick provides wrap-safe millisecond deadline arithmetic.
//
// The controller measures every deadline (valve close time, backoff
// eligibility, time-sync retry, debug cadence) against a uint32
// millisecond counter that wraps past its maximum roughly every 49.7
// days. Comparing such counters with a plain >= is wrong near the wrap
// point, so all deadline checks go through Reached and no other package
// subtracts raw counter values directly.
//
// # Wrap-safe comparison
//
// Reached computes now - deadline with wrapping subtraction and
// interprets the result as a signed value of the same width. A
// non-negative result means the deadline has passed. This is correct
// for any pair of counters less than half the counter range (~24.8
// days) apart, which covers every deadline in the system by a wide
// margin.
package tick
