// Package analytics holds the send-time performance summaries and the
// optimization decision engine that reads them.
package analytics

import (
	"database/sql"
	"time"
)

// DefaultMinSampleSize is the number of sends an hour needs before its click
// rate counts toward variance.
const DefaultMinSampleSize = 100

// HourlyAnalytics is one (analysis date, local send hour) row.
type HourlyAnalytics struct {
	AnalysisDate    time.Time // UTC midnight
	Hour            int
	EmailsSent      int
	EmailsOpened    int
	EmailsClicked   int
	EmailsConverted int
	OpenRate        float64
	ClickRate       float64
	ConversionRate  float64
	SampleSize      int
	// Variance is the day-level coefficient of variation of click rate
	// across qualifying hours, repeated on every row of the date.
	Variance            float64
	EngagementScore     float64
	OptimizationEnabled bool
	UpdatedAt           time.Time
}

// SegmentType is a demographic dimension.
type SegmentType string

const (
	SegmentAge      SegmentType = "age"
	SegmentIncome   SegmentType = "income"
	SegmentIndustry SegmentType = "industry"
)

// SegmentTypes lists the dimensions the aggregator rolls up.
var SegmentTypes = []SegmentType{SegmentAge, SegmentIncome, SegmentIndustry}

// DemographicPerformance is one (analysis date, segment type, segment value) row.
type DemographicPerformance struct {
	AnalysisDate         time.Time
	SegmentType          SegmentType
	SegmentValue         string
	EmailsSent           int
	EmailsOpened         int
	EmailsClicked        int
	EmailsConverted      int
	ClickRate            float64
	OptimalSendHour      sql.NullInt32
	OptimalHourClickRate sql.NullFloat64
	UpdatedAt            time.Time
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Ratio divides safely, returning 0 for a zero denominator.
func Ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
