package retry

import (
	"testing"
	"time"
)

func TestNextRetryDelays(t *testing.T) {
	t.Parallel()
	tests := []struct {
		attempt  int
		delay    time.Duration
		terminal bool
	}{
		{attempt: 1, delay: 15 * time.Minute},
		{attempt: 2, delay: 45 * time.Minute},
		{attempt: 3, delay: 135 * time.Minute},
		{attempt: 4, terminal: true},
		{attempt: 9, terminal: true},
	}
	for _, tt := range tests {
		got := NextRetry(tt.attempt)
		if got.Terminal != tt.terminal {
			t.Fatalf("NextRetry(%d).Terminal = %v, want %v", tt.attempt, got.Terminal, tt.terminal)
		}
		if got.Delay != tt.delay {
			t.Fatalf("NextRetry(%d).Delay = %v, want %v", tt.attempt, got.Delay, tt.delay)
		}
	}
}

func TestNextRetryClampsLowAttempt(t *testing.T) {
	t.Parallel()
	if got := NextRetry(0); got.Delay != 15*time.Minute || got.Attempt != 1 {
		t.Fatalf("NextRetry(0) = %+v, want attempt 1 with 15m", got)
	}
}
