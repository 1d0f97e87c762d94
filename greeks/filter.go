// Package greeks holds the pure delta filtering and call to put synthesis
// rules applied to every Greeks event before it is persisted.
package greeks

import "math"

// Keep reports whether delta falls in the call band [minDelta, maxDelta] or
// in its mirror [1-maxDelta, 1-minDelta]. NaN, infinities and values outside
// [-1, 1] are never kept.
func Keep(delta, minDelta, maxDelta float64) bool {
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta < -1 || delta > 1 {
		return false
	}

	if minDelta <= delta && delta <= maxDelta {
		return true
	}

	return 1-maxDelta <= delta && delta <= 1-minDelta
}

// Band is a configured delta window.
type Band struct {
	Min float64
	Max float64
}

func (b Band) Keep(delta float64) bool {
	return Keep(delta, b.Min, b.Max)
}
