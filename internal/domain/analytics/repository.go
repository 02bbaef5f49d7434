package analytics

import (
	"context"
	"errors"
	"time"
)

var ErrNoAnalytics = errors.New("no analytics rows for date")

// Repository persists the summaries. The Replace methods swap every row of
// one analysis date in a single transaction, so a re-run leaves no hour or
// segment from an earlier run behind. ReplaceHourly keeps the date's
// optimization_enabled flag when rows already exist; a fresh date takes the
// value carried on the argument.
type Repository interface {
	ReplaceHourly(ctx context.Context, date time.Time, rows []HourlyAnalytics) error
	ReplaceDemographic(ctx context.Context, date time.Time, rows []DemographicPerformance) error

	ListHourly(ctx context.Context, date time.Time) ([]HourlyAnalytics, error)
	ListDemographic(ctx context.Context, date time.Time) ([]DemographicPerformance, error)

	// LatestOptimizationFlag returns the flag of the most recent analysed
	// date on or before date (false when none exists).
	LatestOptimizationFlag(ctx context.Context, date time.Time) (bool, error)
	// SetOptimizationEnabled returns the number of hourly rows updated.
	SetOptimizationEnabled(ctx context.Context, date time.Time, enabled bool) (int, error)
	// LatestDemographic returns the most recent row for a segment on or
	// before date, or ErrNoAnalytics.
	LatestDemographic(ctx context.Context, segmentType SegmentType, segmentValue string, date time.Time) (*DemographicPerformance, error)
}
