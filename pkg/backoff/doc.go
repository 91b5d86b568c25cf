// Package backoff implements exponential backoff with jitter for
// reconnection attempts.
//
// Each reconnecting subsystem (network link, message broker) owns an
// independent State. The delay for attempt n is base*2^n capped at a
// configured maximum, then randomized to 75-125% of that value so
// devices that lost power together do not retry in lockstep.
//
// Eligibility checks go through the wrap-safe clock in pkg/tick, so a
// counter wrap between scheduling and checking a retry does not stall
// reconnection.
package backoff
