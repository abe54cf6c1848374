package resilience

import (
	"math"
	"time"
)

// maxRetryDelay caps how far into the future a failed filing can be pushed.
const maxRetryDelay = time.Hour

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// NextRetryDelay returns how long a failed filing should wait before it is
// eligible for another attempt. Backoff doubles with each attempt and is
// capped at maxRetryDelay. Attempt counts from 1 (the first failure).
func NextRetryDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(maxRetryDelay) {
		return maxRetryDelay
	}
	return time.Duration(d)
}

// NextRetryAt returns the wall-clock time a failed filing becomes eligible
// for retry again.
func NextRetryAt(now time.Time, attempt int, base time.Duration) time.Time {
	return now.Add(NextRetryDelay(attempt, base))
}
