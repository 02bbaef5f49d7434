// internal/domain/notification/cycle.go
package notification

import "time"

// CycleReport summarizes a single dispatch run.
type CycleReport struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Claimed     int
	Sent        int
	Retried     int // failure-driven reschedules
	Failed      int // terminal failures
	Deferred    int // quiet-hours or disabled-channel reschedules
	Cancelled   int
	SoftErrors  int // guarded transitions that were refused
	StoreErrors int
	LeftLeased  int // claimed but never started; they keep their lease
}

// Duration of the run.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
