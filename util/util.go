// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// Limiter is a soft limit on a position, in controller steps.  A zero-value
// Limiter (Min == Max == 0) imposes no limit.
type Limiter struct {
	Min int64 `json:"min" yaml:"Min" koanf:"Min"`
	Max int64 `json:"max" yaml:"Max" koanf:"Max"`
}

// Enabled returns true if the limiter restricts anything
func (l Limiter) Enabled() bool {
	return l.Min != 0 || l.Max != 0
}

// Check returns true if x is within the limits, inclusive of the bounds
func (l Limiter) Check(x int64) bool {
	if !l.Enabled() {
		return true
	}
	return x >= l.Min && x <= l.Max
}

// Clamp restricts x to [low, high]
func Clamp(x, low, high int64) int64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// SecsToDuration converts a (float) number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// RoundSteps rounds a float position to the nearest whole step
func RoundSteps(x float64) int64 {
	return int64(math.Round(x))
}
