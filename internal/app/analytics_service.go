package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/cohort"

	"github.com/sirupsen/logrus"
)

// ReportCache stores serialized reports by key. Implementations own the TTL.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

func reportCacheKey(day time.Time) string {
	return "analytics:report:" + day.Format("2006-01-02")
}

// HourRow is the report view of one hourly summary.
type HourRow struct {
	Hour            int     `json:"hour"`
	EmailsSent      int     `json:"emailsSent"`
	EmailsOpened    int     `json:"emailsOpened"`
	EmailsClicked   int     `json:"emailsClicked"`
	EmailsConverted int     `json:"emailsConverted"`
	OpenRate        float64 `json:"openRate"`
	ClickRate       float64 `json:"clickRate"`
	ConversionRate  float64 `json:"conversionRate"`
	SampleSize      int     `json:"sampleSize"`
	EngagementScore float64 `json:"engagementScore"`
}

// SegmentRow is the report view of one demographic summary.
type SegmentRow struct {
	SegmentType          string   `json:"segmentType"`
	SegmentValue         string   `json:"segmentValue"`
	EmailsSent           int      `json:"emailsSent"`
	EmailsClicked        int      `json:"emailsClicked"`
	ClickRate            float64  `json:"clickRate"`
	OptimalSendHour      *int     `json:"optimalSendHour"`
	OptimalHourClickRate *float64 `json:"optimalHourClickRate"`
}

// CohortSummary rolls the per-user cohort counters up by bucket.
type CohortSummary struct {
	CohortName     string   `json:"cohortName"`
	SendHourMin    int      `json:"sendHourMin"`
	SendHourMax    int      `json:"sendHourMax"`
	Users          int      `json:"users"`
	EmailsSent     int      `json:"emailsSent"`
	EmailsClicked  int      `json:"emailsClicked"`
	ClickRate      float64  `json:"clickRate"`
	AvgTimeToClick *float64 `json:"avgTimeToClickMin"`
}

// AnalyticsReport is the day's read model: hourly, demographic and cohort
// tables plus the decision engine's advisory recommendation.
type AnalyticsReport struct {
	Date                time.Time                `json:"date"`
	Hourly              []HourRow                `json:"hourly"`
	Demographics        []SegmentRow             `json:"demographics"`
	Cohorts             []CohortSummary          `json:"cohorts"`
	Variance            float64                  `json:"variance"`
	QualifyingHours     int                      `json:"qualifyingHours"`
	OptimizationEnabled bool                     `json:"optimizationEnabled"`
	Recommendation      analytics.Recommendation `json:"recommendation"`
	GeneratedAt         time.Time                `json:"generatedAt"`
}

// AnalyticsService serves reports and the operator optimization toggle.
type AnalyticsService struct {
	analytics     analytics.Repository
	cohorts       cohort.Repository
	cache         ReportCache
	minSampleSize int
	logger        *logrus.Entry
}

func NewAnalyticsService(ar analytics.Repository, cr cohort.Repository, cache ReportCache, minSampleSize int, logger *logrus.Entry) *AnalyticsService {
	if minSampleSize <= 0 {
		minSampleSize = analytics.DefaultMinSampleSize
	}
	return &AnalyticsService{analytics: ar, cohorts: cr, cache: cache, minSampleSize: minSampleSize, logger: logger}
}

// Report returns the report for date, served from cache when possible.
func (s *AnalyticsService) Report(ctx context.Context, date time.Time) (*AnalyticsReport, error) {
	day := analytics.DateOf(date)
	key := reportCacheKey(day)
	log := s.logger.WithField("analysis_date", day.Format("2006-01-02"))

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.WithError(err).Warn("Report cache read failed")
		} else if ok {
			var rep AnalyticsReport
			if err := json.Unmarshal(raw, &rep); err == nil {
				return &rep, nil
			}
			log.Warn("Discarding undecodable cached report")
		}
	}

	rep, err := s.build(ctx, day)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(rep); err == nil {
			if err := s.cache.Set(ctx, key, raw); err != nil {
				log.WithError(err).Warn("Report cache write failed")
			}
		}
	}
	return rep, nil
}

func (s *AnalyticsService) build(ctx context.Context, day time.Time) (*AnalyticsReport, error) {
	hourly, err := s.analytics.ListHourly(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly analytics: %w", err)
	}
	demo, err := s.analytics.ListDemographic(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load demographic analytics: %w", err)
	}
	flag, err := s.analytics.LatestOptimizationFlag(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load optimization flag: %w", err)
	}

	rep := &AnalyticsReport{
		Date:                day,
		Hourly:              make([]HourRow, 0, len(hourly)),
		Demographics:        make([]SegmentRow, 0, len(demo)),
		OptimizationEnabled: flag,
		GeneratedAt:         time.Now().UTC(),
	}
	for _, h := range hourly {
		rep.Hourly = append(rep.Hourly, HourRow{
			Hour: h.Hour, EmailsSent: h.EmailsSent, EmailsOpened: h.EmailsOpened,
			EmailsClicked: h.EmailsClicked, EmailsConverted: h.EmailsConverted,
			OpenRate: h.OpenRate, ClickRate: h.ClickRate, ConversionRate: h.ConversionRate,
			SampleSize: h.SampleSize, EngagementScore: h.EngagementScore,
		})
	}
	for _, d := range demo {
		row := SegmentRow{
			SegmentType: string(d.SegmentType), SegmentValue: d.SegmentValue,
			EmailsSent: d.EmailsSent, EmailsClicked: d.EmailsClicked, ClickRate: d.ClickRate,
		}
		if d.OptimalSendHour.Valid {
			h := int(d.OptimalSendHour.Int32)
			row.OptimalSendHour = &h
		}
		if d.OptimalHourClickRate.Valid {
			r := d.OptimalHourClickRate.Float64
			row.OptimalHourClickRate = &r
		}
		rep.Demographics = append(rep.Demographics, row)
	}

	rec := analytics.RecommendFromHours(hourly, s.minSampleSize)
	rep.Variance = rec.Variance
	rep.QualifyingHours = rec.QualifyingHours
	rep.Recommendation = rec

	if s.cohorts != nil {
		all, err := s.cohorts.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load cohorts: %w", err)
		}
		rep.Cohorts = summarizeCohorts(all)
	}
	return rep, nil
}

// SetOptimization records the operator's decision for date. It never runs
// automatically from the recommendation.
func (s *AnalyticsService) SetOptimization(ctx context.Context, date time.Time, enabled bool) error {
	day := analytics.DateOf(date)
	n, err := s.analytics.SetOptimizationEnabled(ctx, day, enabled)
	if err != nil {
		return fmt.Errorf("failed to set optimization flag: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", analytics.ErrNoAnalytics, day.Format("2006-01-02"))
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, reportCacheKey(day)); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate cached analytics report")
		}
	}
	s.logger.WithFields(logrus.Fields{
		"analysis_date": day.Format("2006-01-02"),
		"enabled":       enabled,
		"rows":          n,
	}).Info("Optimization flag updated by operator")
	return nil
}

func summarizeCohorts(all []*cohort.Cohort) []CohortSummary {
	byName := map[string]*CohortSummary{}
	clickMinutes := map[string]float64{}
	timed := map[string]int{}
	for _, c := range all {
		sum, ok := byName[c.CohortName]
		if !ok {
			sum = &CohortSummary{CohortName: c.CohortName, SendHourMin: c.SendHourMin, SendHourMax: c.SendHourMax}
			byName[c.CohortName] = sum
		}
		sum.Users++
		sum.EmailsSent += c.EmailsSent
		sum.EmailsClicked += c.EmailsClicked
		if c.AvgTimeToClick.Valid && c.EmailsClicked > 0 {
			clickMinutes[c.CohortName] += c.AvgTimeToClick.Float64 * float64(c.EmailsClicked)
			timed[c.CohortName] += c.EmailsClicked
		}
	}
	out := make([]CohortSummary, 0, len(byName))
	for name, sum := range byName {
		sum.ClickRate = analytics.Ratio(sum.EmailsClicked, sum.EmailsSent)
		if timed[name] > 0 {
			avg := clickMinutes[name] / float64(timed[name])
			sum.AvgTimeToClick = &avg
		}
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CohortName < out[j].CohortName })
	return out
}
