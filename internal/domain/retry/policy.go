// Package retry decides how a failed send is re-attempted.
package retry

import (
	"math"
	"time"
)

const (
	// MaxAttempts is the number of failure-driven reschedules allowed before
	// an entry is marked failed for good.
	MaxAttempts = 3
	// BaseDelay is multiplied by 3^attempt.
	BaseDelay = 5 * time.Minute
	// Factor is the geometric growth of the delay.
	Factor = 3
)

// Decision is the outcome for one failed attempt.
type Decision struct {
	Attempt  int
	Delay    time.Duration
	Terminal bool
}

// NextRetry maps the retry count an entry would have after this failure to a
// delay of 5 * 3^attempt minutes (15, 45, 135 for attempts 1..3). Any
// attempt beyond MaxAttempts is terminal and carries no delay.
func NextRetry(attempt int) Decision {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > MaxAttempts {
		return Decision{Attempt: attempt, Terminal: true}
	}
	mult := math.Pow(Factor, float64(attempt))
	return Decision{Attempt: attempt, Delay: time.Duration(mult) * BaseDelay}
}
