// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/preference"
	"sendtime_notifier/internal/domain/profile"
	"sendtime_notifier/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// Reasons reported when a notification is not queued.
const (
	ReasonProfileNotFound = "profile_not_found"
	ReasonChannelDisabled = "channel_disabled"
)

// DefaultStatsWindowDays is used when a stats caller passes no window.
const DefaultStatsWindowDays = 30

// QueueRequest is what a collaborator supplies to queue a notification.
type QueueRequest struct {
	UserID   string            `json:"userId"`
	Channel  string            `json:"channel"`
	Type     string            `json:"type"`
	Priority int               `json:"priority"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata"`
	// ScheduledFor is optional; nil lets the send-time planner decide.
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
}

// QueueResult tells the caller whether the notification was queued. The
// caller never sees retry internals.
type QueueResult struct {
	Queued       bool       `json:"queued"`
	EntryID      int64      `json:"entryId,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	ScheduledFor time.Time  `json:"scheduledFor,omitempty"`
	PlannedBy    PlanSource `json:"plannedBy,omitempty"`
}

// NotificationService is the queue-facing API exposed to collaborators.
type NotificationService interface {
	// QueueNotification returns Queued=false (and no error) when the user has
	// no profile or the channel is disabled. Errors mean invalid input or
	// storage failure.
	QueueNotification(ctx context.Context, req QueueRequest) (*QueueResult, error)
	CancelNotification(ctx context.Context, entryID int64) error
	GetNotification(ctx context.Context, entryID int64) (*notification.QueueEntry, error)
	GetNotificationStats(ctx context.Context, userID string, windowDays int) (*notification.Stats, error)
}

// NotificationServiceImpl implements the NotificationService interface.
type NotificationServiceImpl struct {
	queue    notification.Repository
	profiles profile.Repository
	planner  *SendTimePlanner
	metrics  *metrics.Collector
	logger   *logrus.Entry
	now      func() time.Time
}

func NewNotificationServiceImpl(
	queue notification.Repository,
	profiles profile.Repository,
	planner *SendTimePlanner,
	mc *metrics.Collector,
	logger *logrus.Entry,
) *NotificationServiceImpl {
	return &NotificationServiceImpl{
		queue:    queue,
		profiles: profiles,
		planner:  planner,
		metrics:  mc,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *NotificationServiceImpl) QueueNotification(ctx context.Context, req QueueRequest) (*QueueResult, error) {
	log := s.logger.WithFields(logrus.Fields{"user_id": req.UserID, "channel": req.Channel, "type": req.Type})

	ch, ok := notification.ParseChannel(req.Channel)
	if !ok {
		s.metrics.RecordEnqueue(req.Channel, "invalid")
		return nil, fmt.Errorf("%w: unsupported channel %q", notification.ErrInvalidEntry, req.Channel)
	}
	if req.UserID == "" {
		s.metrics.RecordEnqueue(string(ch), "invalid")
		return nil, fmt.Errorf("%w: user_id is required", notification.ErrInvalidEntry)
	}

	prof, err := s.profiles.GetByUserID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			log.Info("Notification not queued: user profile not found")
			s.metrics.RecordEnqueue(string(ch), "no_profile")
			return &QueueResult{Queued: false, Reason: ReasonProfileNotFound}, nil
		}
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}

	prefs := preference.Resolve(prof.RawPreferences)
	if !prefs.For(ch).Enabled {
		log.Info("Notification not queued: channel disabled by user preferences")
		s.metrics.RecordEnqueue(string(ch), "disabled")
		return &QueueResult{Queued: false, Reason: ReasonChannelDisabled}, nil
	}

	now := s.now()
	entry := &notification.QueueEntry{
		UserID:   req.UserID,
		Channel:  ch,
		Type:     req.Type,
		Priority: req.Priority,
		Subject:  req.Subject,
		Body:     req.Body,
		Metadata: req.Metadata,
	}
	source := PlanImmediate
	if req.ScheduledFor != nil {
		entry.ScheduledFor = *req.ScheduledFor
	} else if s.planner != nil {
		entry.ScheduledFor, source = s.planner.Plan(ctx, prof, ch, now)
	}
	if err := entry.Normalize(now); err != nil {
		s.metrics.RecordEnqueue(string(ch), "invalid")
		return nil, err
	}

	id, err := s.queue.Enqueue(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}
	s.metrics.RecordEnqueue(string(ch), "queued")
	log.WithFields(logrus.Fields{
		"entry_id":      id,
		"scheduled_for": entry.ScheduledFor,
		"planned_by":    source,
	}).Info("Notification queued")
	return &QueueResult{Queued: true, EntryID: id, ScheduledFor: entry.ScheduledFor, PlannedBy: source}, nil
}

// CancelNotification cancels a pending entry. An entry that is already final
// or currently being sent yields notification.ErrInvalidTransition.
func (s *NotificationServiceImpl) CancelNotification(ctx context.Context, entryID int64) error {
	err := s.queue.Cancel(ctx, entryID, "cancelled by caller", "", s.now())
	log := s.logger.WithField("entry_id", entryID)
	switch {
	case err == nil:
		log.Info("Notification cancelled")
		return nil
	case errors.Is(err, notification.ErrInvalidTransition):
		log.WithError(err).Warn("Cancel refused")
		return err
	case errors.Is(err, notification.ErrEntryNotFound):
		return err
	default:
		return fmt.Errorf("failed to cancel notification: %w", err)
	}
}

func (s *NotificationServiceImpl) GetNotification(ctx context.Context, entryID int64) (*notification.QueueEntry, error) {
	return s.queue.GetByID(ctx, entryID)
}

func (s *NotificationServiceImpl) GetNotificationStats(ctx context.Context, userID string, windowDays int) (*notification.Stats, error) {
	if windowDays <= 0 {
		windowDays = DefaultStatsWindowDays
	}
	since := s.now().AddDate(0, 0, -windowDays)
	rows, err := s.queue.Stats(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification stats: %w", err)
	}
	st := notification.NewStats(userID, windowDays)
	for _, r := range rows {
		st.Add(r.Channel, r.Status, r.Count)
	}
	return st, nil
}
