package backoff

import (
	"math/rand/v2"

	"github.com/agrosmart/edge-go/pkg/tick"
)

// AttemptCap bounds the exponent so the computed delay cannot overflow.
const AttemptCap = 10

// Jitter bounds, in percent of the computed delay.
const (
	jitterMinPercent = 75
	jitterMaxPercent = 125
)

// Policy configures the delay schedule for one subsystem.
type Policy struct {
	// BaseMs is the delay after the first failure.
	BaseMs uint32

	// MaxMs caps the delay regardless of attempt count.
	MaxMs uint32
}

// State tracks the retry position of one reconnecting subsystem.
// The zero value means "never attempted": CanTry returns true.
type State struct {
	// Attempt is the number of consecutive failures so far.
	Attempt uint32

	// NextAllowedAtMs is the wrap-safe deadline before which no retry
	// may be attempted. Only meaningful when Attempt > 0.
	NextAllowedAtMs uint32
}

// CanTry reports whether a retry is allowed at now.
func (s *State) CanTry(now uint32) bool {
	if s.Attempt == 0 {
		return true
	}
	return tick.Reached(now, s.NextAllowedAtMs)
}

// OnFailure records a failed attempt and schedules the next one.
func (s *State) OnFailure(now uint32, p Policy) {
	delay := jitter(NextDelayMs(s.Attempt, p))
	if s.Attempt < AttemptCap {
		s.Attempt++
	}
	s.NextAllowedAtMs = now + delay
}

// OnSuccess resets the state after a successful attempt.
func (s *State) OnSuccess() {
	s.Attempt = 0
	s.NextAllowedAtMs = 0
}

// NextDelayMs returns the un-jittered delay for a given attempt count:
// base*2^attempt capped at the policy maximum. Pure; exercised directly
// by tests without timers.
func NextDelayMs(attempt uint32, p Policy) uint32 {
	if attempt > AttemptCap {
		attempt = AttemptCap
	}
	d := uint64(p.BaseMs) << attempt
	if d > uint64(p.MaxMs) {
		return p.MaxMs
	}
	return uint32(d)
}

// jitter randomizes a delay to 75-125% of its value.
func jitter(ms uint32) uint32 {
	if ms == 0 {
		return 0
	}
	pct := jitterMinPercent + rand.Uint32N(jitterMaxPercent-jitterMinPercent+1)
	return uint32(uint64(ms) * uint64(pct) / 100)
}
