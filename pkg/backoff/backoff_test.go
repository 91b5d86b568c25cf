package backoff

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var testPolicy = Policy{BaseMs: 1000, MaxMs: 30000}

func TestZeroStateCanTry(t *testing.T) {
	var s State
	assert.True(t, s.CanTry(0))
	assert.True(t, s.CanTry(math.MaxUint32))
}

func TestNextDelayMs(t *testing.T) {
	tests := []struct {
		name    string
		attempt uint32
		want    uint32
	}{
		{"First", 0, 1000},
		{"Second", 1, 2000},
		{"Third", 2, 4000},
		{"Fifth", 4, 16000},
		{"Saturated", 5, 30000},
		{"AtCap", AttemptCap, 30000},
		{"BeyondCap", 500, 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDelayMs(tt.attempt, testPolicy))
		})
	}
}

func TestOnFailureSchedule(t *testing.T) {
	var s State
	now := uint32(50000)

	var prevDelta uint32
	for i := 0; i < 5; i++ {
		s.OnFailure(now, testPolicy)
		assert.False(t, s.CanTry(now), "attempt %d: retry allowed immediately", i)

		delta := s.NextAllowedAtMs - now
		unjittered := NextDelayMs(uint32(i), testPolicy)
		assert.GreaterOrEqual(t, delta, unjittered*75/100, "attempt %d below jitter floor", i)
		assert.LessOrEqual(t, delta, unjittered*125/100, "attempt %d above jitter ceiling", i)
		assert.LessOrEqual(t, delta, testPolicy.MaxMs*125/100, "attempt %d exceeds saturated max", i)
		assert.GreaterOrEqual(t, delta, prevDelta*75/125, "attempt %d delta shrank beyond jitter", i)
		prevDelta = delta

		assert.True(t, s.CanTry(s.NextAllowedAtMs), "retry not allowed at its own deadline")
		now = s.NextAllowedAtMs
	}
}

func TestAttemptCapped(t *testing.T) {
	var s State
	for i := 0; i < 50; i++ {
		s.OnFailure(0, testPolicy)
	}
	assert.Equal(t, uint32(AttemptCap), s.Attempt)
}

func TestOnSuccessResets(t *testing.T) {
	var s State
	s.OnFailure(100, testPolicy)
	s.OnSuccess()

	assert.Equal(t, uint32(0), s.Attempt)
	assert.Equal(t, uint32(0), s.NextAllowedAtMs)
	assert.True(t, s.CanTry(100))
}

func TestCanTryAcrossWrap(t *testing.T) {
	// Deadline scheduled just before the counter wraps.
	s := State{Attempt: 3, NextAllowedAtMs: 500} // wrapped deadline
	assert.False(t, s.CanTry(math.MaxUint32-1000))
	assert.True(t, s.CanTry(500))
	assert.True(t, s.CanTry(600))
}
