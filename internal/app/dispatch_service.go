package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/preference"
	"sendtime_notifier/internal/domain/profile"
	"sendtime_notifier/internal/domain/retry"
	"sendtime_notifier/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Dispatch outcomes, used for logging and metrics.
const (
	OutcomeSent      = "sent"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeDeferred  = "deferred"
	OutcomeCancelled = "cancelled"
	OutcomeSkipped   = "skipped"
)

// Senders resolves the sender for a channel.
type Senders interface {
	For(ch notification.Channel) (notification.Sender, bool)
}

// DispatchConfig tunes a dispatch cycle. ClaimLease must exceed twice
// SendTimeout: a cycle stops starting sends once less than that margin of
// its lease is left.
type DispatchConfig struct {
	BatchSize   int
	SendTimeout time.Duration
	ClaimLease  time.Duration
	// DisabledRecheck is how far an entry for a disabled channel is pushed
	// back; DisabledMaxAge is the entry age after which it is cancelled.
	DisabledRecheck time.Duration
	DisabledMaxAge  time.Duration
}

// DefaultDispatchConfig matches the documented defaults.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BatchSize:       100,
		SendTimeout:     30 * time.Second,
		ClaimLease:      10 * time.Minute,
		DisabledRecheck: 24 * time.Hour,
		DisabledMaxAge:  7 * 24 * time.Hour,
	}
}

// sendBudget is how long after the claim a cycle may still start a send.
// The last send gets SendTimeout and its state write gets as long again,
// both inside the lease.
func (c DispatchConfig) sendBudget() time.Duration {
	return c.ClaimLease - 2*c.SendTimeout
}

// DispatchService runs delivery cycles over the queue.
type DispatchService struct {
	queue      notification.Repository
	profiles   profile.Repository
	senders    Senders
	engagement *EngagementService
	cohorts    *CohortService
	cfg        DispatchConfig
	metrics    *metrics.Collector
	logger     *logrus.Entry

	now      func() time.Time
	newToken func() string
}

func NewDispatchService(
	queue notification.Repository,
	profiles profile.Repository,
	senders Senders,
	es *EngagementService,
	cs *CohortService,
	cfg DispatchConfig,
	mc *metrics.Collector,
	logger *logrus.Entry,
) *DispatchService {
	if cfg.sendBudget() <= 0 {
		logger.WithFields(logrus.Fields{
			"claim_lease":  cfg.ClaimLease.String(),
			"send_timeout": cfg.SendTimeout.String(),
		}).Warn("Send timeout too long for the claim lease, shortening it")
		cfg.SendTimeout = cfg.ClaimLease / 3
	}
	return &DispatchService{
		queue:      queue,
		profiles:   profiles,
		senders:    senders,
		engagement: es,
		cohorts:    cs,
		cfg:        cfg,
		metrics:    mc,
		logger:     logger,
		now:        time.Now,
		newToken:   func() string { return uuid.NewString() },
	}
}

// RunCycle claims one batch of due entries and drives each to its next
// state. Per-entry problems are counted in the report, never returned; the
// error is only set when the claim itself fails.
//
// No send starts after the lease budget is spent, so a later cycle that
// re-claims an expired lease never races this one for the same entry. The
// entries left over keep their lease and are picked up once it expires.
func (s *DispatchService) RunCycle(ctx context.Context) (notification.CycleReport, error) {
	sendBy := time.Now().Add(s.cfg.sendBudget())
	report := notification.CycleReport{StartedAt: s.now()}
	token := s.newToken()
	log := s.logger.WithField("claim_token", token)

	entries, err := s.queue.ClaimDue(ctx, s.cfg.BatchSize, report.StartedAt, token, s.cfg.ClaimLease)
	if err != nil {
		report.FinishedAt = s.now()
		return report, fmt.Errorf("failed to claim due notifications: %w", err)
	}
	report.Claimed = len(entries)
	if len(entries) > 0 {
		log.WithField("claimed", len(entries)).Info("Dispatch cycle claimed entries")
	}

	for i, e := range entries {
		if ctx.Err() != nil {
			report.LeftLeased = len(entries) - i
			log.WithError(ctx.Err()).WithField("left_leased", report.LeftLeased).Warn("Dispatch cycle interrupted")
			break
		}
		if !time.Now().Before(sendBy) {
			report.LeftLeased = len(entries) - i
			log.WithField("left_leased", report.LeftLeased).Warn("Claim lease nearly spent, stopping dispatch cycle")
			break
		}
		outcome, err := s.dispatchOne(ctx, e, token)
		entryLog := log.WithFields(logrus.Fields{
			"entry_id": e.ID,
			"user_id":  e.UserID,
			"channel":  e.Channel,
			"outcome":  outcome,
		})
		switch {
		case err == nil:
			entryLog.Debug("Entry dispatched")
		case errors.Is(err, notification.ErrInvalidTransition):
			report.SoftErrors++
			entryLog.WithError(err).Warn("Guarded transition refused")
			continue
		default:
			report.StoreErrors++
			entryLog.WithError(err).Error("Failed to process queue entry")
			continue
		}
		s.metrics.RecordOutcome(string(e.Channel), outcome)
		switch outcome {
		case OutcomeSent:
			report.Sent++
		case OutcomeRetried:
			report.Retried++
		case OutcomeFailed:
			report.Failed++
		case OutcomeDeferred:
			report.Deferred++
		case OutcomeCancelled:
			report.Cancelled++
		}
	}

	report.FinishedAt = s.now()
	s.metrics.ObserveCycle(report.Duration())
	if report.Claimed > 0 {
		log.WithFields(logrus.Fields{
			"sent":         report.Sent,
			"retried":      report.Retried,
			"failed":       report.Failed,
			"deferred":     report.Deferred,
			"cancelled":    report.Cancelled,
			"soft_errors":  report.SoftErrors,
			"store_errors": report.StoreErrors,
			"left_leased":  report.LeftLeased,
			"duration":     report.Duration().String(),
		}).Info("Dispatch cycle finished")
	}
	return report, nil
}

func (s *DispatchService) dispatchOne(ctx context.Context, e *notification.QueueEntry, token string) (string, error) {
	prof, err := s.profiles.GetByUserID(ctx, e.UserID)
	if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
		return OutcomeSkipped, fmt.Errorf("failed to load profile: %w", err)
	}
	if err != nil {
		prof = nil // resolves to all-disabled below
	}

	var raw []byte
	if prof != nil {
		raw = prof.RawPreferences
	}
	prefs := preference.Resolve(raw).For(e.Channel)
	now := s.now()

	if !prefs.Enabled {
		if now.Sub(e.CreatedAt) >= s.cfg.DisabledMaxAge {
			if err := s.queue.Cancel(ctx, e.ID, "channel disabled", token, now); err != nil {
				return OutcomeCancelled, err
			}
			return OutcomeCancelled, nil
		}
		if err := s.queue.Reschedule(ctx, e.ID, now.Add(s.cfg.DisabledRecheck), "channel disabled", false, now); err != nil {
			return OutcomeDeferred, err
		}
		return OutcomeDeferred, nil
	}

	local := now.In(prof.Location())
	if preference.IsInQuietHours(prefs.QuietHours, local) {
		next := preference.NextAvailableInstant(prefs.QuietHours, local)
		if err := s.queue.Reschedule(ctx, e.ID, next, "quiet hours", false, now); err != nil {
			return OutcomeDeferred, err
		}
		return OutcomeDeferred, nil
	}

	sendErr := s.send(ctx, e, prof)
	if sendErr == nil {
		sentAt := s.now()
		if err := s.queue.MarkSent(ctx, e.ID, sentAt); err != nil {
			return OutcomeSent, err
		}
		s.recordSend(ctx, e, sentAt, prof)
		return OutcomeSent, nil
	}

	decision := retry.NextRetry(e.RetryCount + 1)
	reason := sendErr.Error()
	if decision.Terminal {
		if err := s.queue.MarkFailed(ctx, e.ID, reason, now); err != nil {
			return OutcomeFailed, err
		}
		s.logger.WithFields(logrus.Fields{"entry_id": e.ID, "reason": reason}).Warn("Notification failed permanently")
		return OutcomeFailed, nil
	}
	if err := s.queue.Reschedule(ctx, e.ID, now.Add(decision.Delay), reason, true, now); err != nil {
		return OutcomeRetried, err
	}
	return OutcomeRetried, nil
}

func (s *DispatchService) send(ctx context.Context, e *notification.QueueEntry, prof *profile.Profile) error {
	sender, ok := s.senders.For(e.Channel)
	if !ok {
		return fmt.Errorf("no sender configured for channel %s", e.Channel)
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	started := time.Now()
	err := sender.Send(sendCtx, e, recipientOf(prof))
	s.metrics.ObserveSend(string(e.Channel), time.Since(started))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("send timed out after %s", s.cfg.SendTimeout)
	}
	return err
}

// recordSend assigns the cohort on the first eligible send and stores the
// engagement snapshot. Failures here never undo the delivery.
func (s *DispatchService) recordSend(ctx context.Context, e *notification.QueueEntry, sentAt time.Time, prof *profile.Profile) {
	log := s.logger.WithFields(logrus.Fields{"entry_id": e.ID, "user_id": e.UserID})
	cohortName := ""
	if s.cohorts != nil && s.cohorts.Eligible(e.Channel) {
		c, err := s.cohorts.Assign(ctx, e.UserID, sentAt)
		if err != nil {
			log.WithError(err).Warn("Cohort assignment failed")
		} else {
			cohortName = c.CohortName
		}
	}
	if s.engagement == nil {
		return
	}
	if _, err := s.engagement.RecordSend(ctx, e, sentAt, prof, cohortName); err != nil {
		log.WithError(err).Warn("Engagement send event not recorded")
	}
}

func recipientOf(p *profile.Profile) notification.Recipient {
	return notification.Recipient{
		UserID: p.UserID,
		Name:   p.FirstName,
		Email:  p.Email.String,
		Phone:  p.Phone.String,
		ChatID: p.ChatID.Int64,
	}
}
