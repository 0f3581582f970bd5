package controller

import (
	"time"

	"site-controller/core/configversion"
)

// SLA describes how long an object may stay in its current state.
type SLA struct {
	// Limit is the allowed time in state. Zero means the state has no SLA.
	Limit time.Duration `json:"limit"`
	// TimeInStateAboveSLA is set once the object stayed longer than Limit.
	TimeInStateAboveSLA bool `json:"time_in_state_above_sla"`
}

// NoSLA is used for states an object may stay in indefinitely.
func NoSLA() SLA {
	return SLA{}
}

// WithSLA compares timeInState against limit.
func WithSLA(limit, timeInState time.Duration) SLA {
	return SLA{Limit: limit, TimeInStateAboveSLA: timeInState > limit}
}

// SLAFor evaluates limit against the time elapsed since version was written.
// A zero limit yields NoSLA.
func SLAFor(limit time.Duration, version configversion.ConfigVersion, now time.Time) SLA {
	if limit <= 0 {
		return NoSLA()
	}
	return WithSLA(limit, version.Since(now))
}

// HasSLA reports whether a limit applies.
func (s SLA) HasSLA() bool {
	return s.Limit > 0
}
