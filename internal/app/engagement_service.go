package app

import (
	"context"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/profile"
	"sendtime_notifier/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// Signal sources, used as a metrics label.
const (
	SourceAPI      = "api"
	SourceKafka    = "kafka"
	SourceTelegram = "telegram"
)

// EngagementService records send events and the user's later reactions.
type EngagementService struct {
	repo    engagement.Repository
	metrics *metrics.Collector
	logger  *logrus.Entry
}

func NewEngagementService(repo engagement.Repository, mc *metrics.Collector, logger *logrus.Entry) *EngagementService {
	return &EngagementService{repo: repo, metrics: mc, logger: logger}
}

// RecordSend stores the immutable send snapshot for a delivered entry.
func (s *EngagementService) RecordSend(ctx context.Context, entry *notification.QueueEntry, sentAt time.Time, prof *profile.Profile, cohortName string) (*engagement.Event, error) {
	demo := engagement.DemographicSnapshot{}
	if prof != nil {
		demo = engagement.DemographicSnapshot{
			AgeBracket:      prof.AgeBracket,
			IncomeBracket:   prof.IncomeBracket,
			IndustryBracket: prof.IndustryBracket,
		}
	}
	ev := engagement.NewSendEvent(entry, sentAt, prof.Location(), demo, cohortName)
	if err := s.repo.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to record send event for entry %d: %w", entry.ID, err)
	}
	return ev, nil
}

// RecordSignal applies an open/click/convert to the notification's event.
// Duplicate signals are accepted and leave the event unchanged; changed
// reports whether anything was written.
func (s *EngagementService) RecordSignal(ctx context.Context, notificationID int64, kind engagement.SignalKind, at time.Time, source string) (ev *engagement.Event, changed bool, err error) {
	log := s.logger.WithFields(logrus.Fields{
		"notification_id": notificationID,
		"signal":          kind,
		"source":          source,
	})
	ev, err = s.repo.GetByNotificationID(ctx, notificationID)
	if err != nil {
		if err == engagement.ErrEventNotFound {
			log.Warn("Engagement signal for unknown notification")
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to load engagement event: %w", err)
	}
	if at.IsZero() {
		at = time.Now()
	}
	if !ev.Apply(kind, at) {
		log.Debug("Duplicate engagement signal ignored")
		return ev, false, nil
	}
	if err := s.repo.UpdateSignals(ctx, ev); err != nil {
		return nil, false, fmt.Errorf("failed to store engagement signal: %w", err)
	}
	s.metrics.RecordSignal(string(kind), source)
	log.Info("Engagement signal recorded")
	return ev, true, nil
}
