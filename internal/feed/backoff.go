package feed

import (
	"math"
	"time"
)

// ShouldPoll reports whether a source is eligible for a new attempt. The
// delay grows super-linearly with the backoff factor: 45 minutes at factor
// 1, close to 24 hours at MaxBackoff. Failing feeds settle at factor 10
// instead of being muted and resurrected.
func ShouldPoll(lastAttempt time.Time, factor int, now time.Time) bool {
	if factor < 1 {
		factor = 1
	}
	minutes := 45 * math.Pow(float64(factor), 1.5)
	delay := time.Duration(minutes * float64(time.Minute))
	return now.After(lastAttempt.Add(delay))
}

// NextFactorOnFailure increments the backoff factor, capped at MaxBackoff.
func NextFactorOnFailure(factor int) int {
	if factor >= MaxBackoff {
		return MaxBackoff
	}
	return factor + 1
}

// SafeFactor returns the lowest backoff factor that keeps the request
// timeout above the observed response time, with a margin. A slow but
// successful response must not drop the factor straight back to 1, or the
// next attempt would time out against the same slow server.
func SafeFactor(responseTime time.Duration) int {
	return int(responseTime.Seconds()*1.2/10) + 1
}

// NextFactorOnSuccess lowers the factor after a successful poll, but never
// below what SafeFactor allows and never upward.
func NextFactorOnSuccess(factor int, responseTime time.Duration) int {
	safe := SafeFactor(responseTime)
	if safe < factor {
		return safe
	}
	return factor
}

// RequestTimeout is the HTTP timeout for one poll attempt.
func RequestTimeout(factor int) time.Duration {
	if factor < 1 {
		factor = 1
	}
	return time.Duration(10*factor) * time.Second
}

// TaskTimeout is the advisory upper bound for a whole poll attempt,
// including parsing and fan-out.
func TaskTimeout(factor int) time.Duration {
	if factor < 1 {
		factor = 1
	}
	return time.Duration(20*factor) * time.Second
}
