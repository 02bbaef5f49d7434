package app

import (
	"context"
	"time"

	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/profile"

	"github.com/sirupsen/logrus"
)

// PlanSource says which rule picked a send instant.
type PlanSource string

const (
	PlanImmediate   PlanSource = "immediate"
	PlanOptimalHour PlanSource = "optimal_hour"
	PlanCohort      PlanSource = "cohort_window"
)

// SendTimePlanner picks scheduledFor for notifications queued without one.
// Lookup failures degrade to sending immediately.
type SendTimePlanner struct {
	analytics analytics.Repository
	cohorts   *CohortService
	logger    *logrus.Entry
}

func NewSendTimePlanner(ar analytics.Repository, cs *CohortService, logger *logrus.Entry) *SendTimePlanner {
	return &SendTimePlanner{analytics: ar, cohorts: cs, logger: logger}
}

// Plan returns the instant (UTC) to schedule at.
//
// When an operator has enabled optimization, the user's first demographic
// segment with a known optimal hour wins. Otherwise a non-control cohort
// constrains eligible channels to its hour range.
func (p *SendTimePlanner) Plan(ctx context.Context, prof *profile.Profile, ch notification.Channel, now time.Time) (time.Time, PlanSource) {
	loc := prof.Location()
	local := now.In(loc)
	log := p.logger.WithFields(logrus.Fields{"user_id": prof.UserID, "channel": ch})

	enabled, err := p.analytics.LatestOptimizationFlag(ctx, now)
	if err != nil {
		log.WithError(err).Warn("Could not read optimization flag, skipping optimal-hour planning")
	}
	if enabled {
		for _, seg := range segmentsOf(prof) {
			row, err := p.analytics.LatestDemographic(ctx, seg.Type, seg.Value, now)
			if err != nil {
				if err != analytics.ErrNoAnalytics {
					log.WithError(err).Warn("Could not read demographic performance")
				}
				continue
			}
			if row.OptimalSendHour.Valid {
				return nextHourOccurrence(local, int(row.OptimalSendHour.Int32)).UTC(), PlanOptimalHour
			}
		}
	}

	if p.cohorts != nil && p.cohorts.Eligible(ch) {
		c, err := p.cohorts.Lookup(ctx, prof.UserID)
		switch {
		case err == nil && !c.IsControl():
			return c.NextWindowStart(local).UTC(), PlanCohort
		case err != nil && !isNotFound(err):
			log.WithError(err).Warn("Could not read cohort")
		}
	}
	return now.UTC(), PlanImmediate
}

type segment struct {
	Type  analytics.SegmentType
	Value string
}

func segmentsOf(p *profile.Profile) []segment {
	out := make([]segment, 0, 3)
	for _, s := range []segment{
		{analytics.SegmentAge, p.AgeBracket},
		{analytics.SegmentIncome, p.IncomeBracket},
		{analytics.SegmentIndustry, p.IndustryBracket},
	} {
		if s.Value != "" {
			out = append(out, s)
		}
	}
	return out
}

// nextHourOccurrence returns now if it is already inside hour, else the next
// top of that hour in now's location.
func nextHourOccurrence(now time.Time, hour int) time.Time {
	if now.Hour() == hour {
		return now
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return at
}
