// Package cohort assigns users to fixed send-time test buckets.
package cohort

import (
	"database/sql"
	"errors"
	"hash/fnv"
	"time"
)

var ErrCohortNotFound = errors.New("send-time cohort not found")

// Bucket is a named local-hour range [HourMin, HourMax).
type Bucket struct {
	Name        string
	HourMin     int
	HourMax     int
	WeekendOnly bool
}

// Control receives notifications as soon as they are due.
const ControlName = "control"

// Buckets is the fixed set of test buckets. Order matters: assignment hashes
// into this slice, so entries must only ever be appended.
var Buckets = []Bucket{
	{Name: "morning", HourMin: 6, HourMax: 10},
	{Name: "lunch", HourMin: 11, HourMax: 14},
	{Name: "evening", HourMin: 17, HourMax: 20},
	{Name: "night", HourMin: 20, HourMax: 23},
	{Name: "weekend", HourMin: 9, HourMax: 13, WeekendOnly: true},
	{Name: ControlName, HourMin: 0, HourMax: 24},
}

// BucketByName looks up a bucket definition.
func BucketByName(name string) (Bucket, bool) {
	for _, b := range Buckets {
		if b.Name == name {
			return b, true
		}
	}
	return Bucket{}, false
}

// Pick deterministically maps a user to a bucket.
func Pick(userID string) Bucket {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return Buckets[int(h.Sum32()%uint32(len(Buckets)))]
}

// Cohort is a user's one-time bucket assignment plus running counters.
// Bucket bounds never change after creation.
type Cohort struct {
	UserID      string
	CohortName  string
	SendHourMin int
	SendHourMax int
	AssignedAt  time.Time

	EmailsSent     int
	EmailsClicked  int
	ClickRate      float64
	AvgTimeToClick sql.NullFloat64 // minutes
	UpdatedAt      time.Time
}

// NewCohort builds the assignment row for userID.
func NewCohort(userID string, now time.Time) *Cohort {
	b := Pick(userID)
	return &Cohort{
		UserID:      userID,
		CohortName:  b.Name,
		SendHourMin: b.HourMin,
		SendHourMax: b.HourMax,
		AssignedAt:  now.UTC(),
	}
}

// IsControl reports whether the cohort is the unconstrained control group.
func (c *Cohort) IsControl() bool {
	return c.CohortName == ControlName
}

// NextWindowStart returns the earliest instant at or after now (in now's
// location) that lies inside the cohort's hour range.
func (c *Cohort) NextWindowStart(now time.Time) time.Time {
	b, _ := BucketByName(c.CohortName)
	for day := 0; day < 8; day++ {
		d := time.Date(now.Year(), now.Month(), now.Day()+day, 0, 0, 0, 0, now.Location())
		if b.WeekendOnly && d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			continue
		}
		start := time.Date(d.Year(), d.Month(), d.Day(), c.SendHourMin, 0, 0, 0, now.Location())
		end := time.Date(d.Year(), d.Month(), d.Day(), c.SendHourMax, 0, 0, 0, now.Location())
		if !now.Before(start) && now.Before(end) {
			return now
		}
		if !start.Before(now) {
			return start
		}
	}
	return now
}
