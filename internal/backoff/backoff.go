// Package backoff provides the retry delay policy for failed sync batches.
package backoff

import "time"

// Delay returns the wait before retry attempt number attempt (1-based):
// base * multiplier^(attempt-1), capped at cap when cap > 0.
//
// Pure and deterministic. For multiplier >= 1 the result is monotonically
// non-decreasing in attempt, up to the cap.
func Delay(attempt int, base time.Duration, multiplier float64, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}

	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= multiplier
		if cap > 0 && d >= float64(cap) {
			return cap
		}
	}

	if cap > 0 && d > float64(cap) {
		return cap
	}
	return time.Duration(d)
}
