package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/cohort"
	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// AggregationConfig tunes the aggregator.
type AggregationConfig struct {
	WindowDays    int // lookback ending on the analysis date, inclusive
	MinSampleSize int // sends an hour needs to count toward variance
}

// DefaultAggregationConfig matches the documented defaults.
func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{WindowDays: 90, MinSampleSize: analytics.DefaultMinSampleSize}
}

// AggregationReport summarizes one aggregator run.
type AggregationReport struct {
	Date           time.Time                `json:"date"`
	WindowFrom     time.Time                `json:"windowFrom"`
	WindowTo       time.Time                `json:"windowTo"`
	EventsScanned  int                      `json:"eventsScanned"`
	RowsSkipped    int                      `json:"rowsSkipped"`
	HourRows       int                      `json:"hourRows"`
	SegmentRows    int                      `json:"segmentRows"`
	CohortsUpdated int                      `json:"cohortsUpdated"`
	CohortErrors   int                      `json:"cohortErrors"`
	OptimizationOn bool                     `json:"optimizationEnabled"`
	Recommendation analytics.Recommendation `json:"recommendation"`
}

// AggregationService rolls engagement events into the summary tables.
// Re-running it for the same date overwrites the same rows.
type AggregationService struct {
	events    engagement.Repository
	analytics analytics.Repository
	cohorts   cohort.Repository
	cohortSvc *CohortService
	cache     ReportCache
	cfg       AggregationConfig
	metrics   *metrics.Collector
	logger    *logrus.Entry
}

func NewAggregationService(
	events engagement.Repository,
	ar analytics.Repository,
	cr cohort.Repository,
	cs *CohortService,
	cache ReportCache,
	cfg AggregationConfig,
	mc *metrics.Collector,
	logger *logrus.Entry,
) *AggregationService {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 90
	}
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = analytics.DefaultMinSampleSize
	}
	return &AggregationService{
		events:    events,
		analytics: ar,
		cohorts:   cr,
		cohortSvc: cs,
		cache:     cache,
		cfg:       cfg,
		metrics:   mc,
		logger:    logger,
	}
}

type counts struct {
	sent, opened, clicked, converted int
	score                            float64
}

func (c *counts) add(ev *engagement.Event, asOf time.Time) {
	c.sent++
	if ev.Opened {
		c.opened++
	}
	if ev.Clicked {
		c.clicked++
	}
	if ev.Converted {
		c.converted++
	}
	c.score += engagement.Score(ev, asOf)
}

type segmentKey struct {
	typ   analytics.SegmentType
	value string
}

type segmentCounts struct {
	counts
	hourSent, hourClicked [24]int
}

type cohortCounts struct {
	sent, clicked int
	clickMinutes  float64
	timedClicks   int
}

// Run aggregates the window ending on date. Malformed events are skipped
// with a warning; only storage failures abort the run.
func (s *AggregationService) Run(ctx context.Context, date time.Time) (*AggregationReport, error) {
	day := analytics.DateOf(date)
	to := day.AddDate(0, 0, 1)
	from := day.AddDate(0, 0, -(s.cfg.WindowDays - 1))
	report := &AggregationReport{Date: day, WindowFrom: from, WindowTo: to}
	log := s.logger.WithFields(logrus.Fields{"analysis_date": day.Format("2006-01-02"), "window_days": s.cfg.WindowDays})

	events, err := s.events.ListSentBetween(ctx, from, to, func(id int64, err error) {
		report.RowsSkipped++
		s.metrics.RecordSkippedRow()
		log.WithError(err).WithField("event_id", id).Warn("Skipping malformed engagement event")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read engagement events: %w", err)
	}
	report.EventsScanned = len(events)

	var hours [24]counts
	segments := map[segmentKey]*segmentCounts{}
	segmentOrder := make([]segmentKey, 0)
	perUser := map[string]*cohortCounts{}

	for _, ev := range events {
		hours[ev.SendHour].add(ev, to)
		for _, key := range eventSegments(ev) {
			sc, ok := segments[key]
			if !ok {
				sc = &segmentCounts{}
				segments[key] = sc
				segmentOrder = append(segmentOrder, key)
			}
			sc.add(ev, to)
			sc.hourSent[ev.SendHour]++
			if ev.Clicked {
				sc.hourClicked[ev.SendHour]++
			}
		}
		if s.cohortSvc != nil && s.cohortSvc.Eligible(ev.Channel) {
			cc, ok := perUser[ev.UserID]
			if !ok {
				cc = &cohortCounts{}
				perUser[ev.UserID] = cc
			}
			cc.sent++
			if ev.Clicked {
				cc.clicked++
				if ev.TimeToClickMin.Valid {
					cc.clickMinutes += ev.TimeToClickMin.Float64
					cc.timedClicks++
				}
			}
		}
	}

	flag, err := s.analytics.LatestOptimizationFlag(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read optimization flag: %w", err)
	}
	report.OptimizationOn = flag

	hourly := make([]analytics.HourlyAnalytics, 0, 24)
	now := time.Now().UTC()
	for h := 0; h < 24; h++ {
		c := hours[h]
		if c.sent == 0 {
			continue
		}
		hourly = append(hourly, analytics.HourlyAnalytics{
			AnalysisDate:        day,
			Hour:                h,
			EmailsSent:          c.sent,
			EmailsOpened:        c.opened,
			EmailsClicked:       c.clicked,
			EmailsConverted:     c.converted,
			OpenRate:            analytics.Ratio(c.opened, c.sent),
			ClickRate:           analytics.Ratio(c.clicked, c.sent),
			ConversionRate:      analytics.Ratio(c.converted, c.sent),
			SampleSize:          c.sent,
			EngagementScore:     c.score / float64(c.sent),
			OptimizationEnabled: flag,
			UpdatedAt:           now,
		})
	}
	rec := analytics.RecommendFromHours(hourly, s.cfg.MinSampleSize)
	for i := range hourly {
		hourly[i].Variance = rec.Variance
	}
	report.Recommendation = rec

	if err := s.analytics.ReplaceHourly(ctx, day, hourly); err != nil {
		return nil, fmt.Errorf("failed to store hourly analytics: %w", err)
	}
	report.HourRows = len(hourly)

	demo := make([]analytics.DemographicPerformance, 0, len(segmentOrder))
	for _, key := range segmentOrder {
		sc := segments[key]
		row := analytics.DemographicPerformance{
			AnalysisDate:    day,
			SegmentType:     key.typ,
			SegmentValue:    key.value,
			EmailsSent:      sc.sent,
			EmailsOpened:    sc.opened,
			EmailsClicked:   sc.clicked,
			EmailsConverted: sc.converted,
			ClickRate:       analytics.Ratio(sc.clicked, sc.sent),
			UpdatedAt:       now,
		}
		if hour, rate, ok := analytics.OptimalHour(sc.hourSent, sc.hourClicked); ok {
			row.OptimalSendHour = sql.NullInt32{Int32: int32(hour), Valid: true}
			row.OptimalHourClickRate = sql.NullFloat64{Float64: rate, Valid: true}
		}
		demo = append(demo, row)
	}
	if err := s.analytics.ReplaceDemographic(ctx, day, demo); err != nil {
		return nil, fmt.Errorf("failed to store demographic analytics: %w", err)
	}
	report.SegmentRows = len(demo)

	if s.cohorts != nil {
		s.updateCohorts(ctx, perUser, report, log)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, reportCacheKey(day)); err != nil {
			log.WithError(err).Warn("Failed to invalidate cached analytics report")
		}
	}

	log.WithFields(logrus.Fields{
		"events":           report.EventsScanned,
		"skipped":          report.RowsSkipped,
		"hour_rows":        report.HourRows,
		"segment_rows":     report.SegmentRows,
		"cohorts_updated":  report.CohortsUpdated,
		"variance":         rec.Variance,
		"qualifying_hours": rec.QualifyingHours,
		"recommendation":   rec.Kind,
	}).Info("Aggregation finished")
	return report, nil
}

// updateCohorts overwrites every cohort's counters with the window totals.
func (s *AggregationService) updateCohorts(ctx context.Context, perUser map[string]*cohortCounts, report *AggregationReport, log *logrus.Entry) {
	all, err := s.cohorts.List(ctx)
	if err != nil {
		report.CohortErrors++
		log.WithError(err).Error("Failed to list cohorts, counters not updated")
		return
	}
	for _, c := range all {
		cc := perUser[c.UserID]
		if cc == nil {
			cc = &cohortCounts{}
		}
		c.EmailsSent = cc.sent
		c.EmailsClicked = cc.clicked
		c.ClickRate = analytics.Ratio(cc.clicked, cc.sent)
		c.AvgTimeToClick = sql.NullFloat64{}
		if cc.timedClicks > 0 {
			c.AvgTimeToClick = sql.NullFloat64{Float64: cc.clickMinutes / float64(cc.timedClicks), Valid: true}
		}
		c.UpdatedAt = time.Now().UTC()
		if err := s.cohorts.UpdateCounters(ctx, c); err != nil {
			report.CohortErrors++
			log.WithError(err).WithField("user_id", c.UserID).Warn("Failed to update cohort counters")
			continue
		}
		report.CohortsUpdated++
	}
}

func eventSegments(ev *engagement.Event) []segmentKey {
	out := make([]segmentKey, 0, 3)
	if v := ev.Demographics.AgeBracket; v != "" {
		out = append(out, segmentKey{analytics.SegmentAge, v})
	}
	if v := ev.Demographics.IncomeBracket; v != "" {
		out = append(out, segmentKey{analytics.SegmentIncome, v})
	}
	if v := ev.Demographics.IndustryBracket; v != "" {
		out = append(out, segmentKey{analytics.SegmentIndustry, v})
	}
	return out
}
