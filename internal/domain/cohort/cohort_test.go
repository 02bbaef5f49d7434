package cohort

import (
	"fmt"
	"testing"
	"time"
)

func TestPickIsDeterministic(t *testing.T) {
	t.Parallel()
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("user-%d", i)
		if Pick(id) != Pick(id) {
			t.Fatalf("Pick(%q) is not stable", id)
		}
	}
}

func TestPickCoversAllBuckets(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for i := 0; i < 2000; i++ {
		seen[Pick(fmt.Sprintf("user-%d", i)).Name] = true
	}
	if len(seen) != len(Buckets) {
		t.Fatalf("expected all %d buckets to be used, saw %v", len(Buckets), seen)
	}
}

func TestNextWindowStart(t *testing.T) {
	t.Parallel()
	// Tuesday.
	base := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	morning := &Cohort{CohortName: "morning", SendHourMin: 6, SendHourMax: 10}

	tests := []struct {
		name string
		c    *Cohort
		now  time.Time
		want time.Time
	}{
		{"before window", morning, base.Add(3 * time.Hour), base.Add(6 * time.Hour)},
		{"inside window", morning, base.Add(7*time.Hour + 15*time.Minute), base.Add(7*time.Hour + 15*time.Minute)},
		{"after window", morning, base.Add(11 * time.Hour), base.Add(30 * time.Hour)},
		{"weekend waits for saturday", &Cohort{CohortName: "weekend", SendHourMin: 9, SendHourMax: 13}, base.Add(10 * time.Hour), base.Add(4*24*time.Hour + 9*time.Hour)},
	}
	for _, tt := range tests {
		if got := tt.c.NextWindowStart(tt.now); !got.Equal(tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewCohortCopiesBucketBounds(t *testing.T) {
	t.Parallel()
	c := NewCohort("user-42", time.Now())
	b := Pick("user-42")
	if c.CohortName != b.Name || c.SendHourMin != b.HourMin || c.SendHourMax != b.HourMax {
		t.Fatalf("cohort %+v does not match bucket %+v", c, b)
	}
}
