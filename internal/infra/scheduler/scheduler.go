package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sendtime_notifier/internal/app"
	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/infra/cache"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Lock keys for the two batch jobs.
const (
	DispatchLockKey  = "job:dispatch"
	AggregateLockKey = "job:aggregate"
)

// Dispatcher runs one delivery cycle.
type Dispatcher interface {
	RunCycle(ctx context.Context) (notification.CycleReport, error)
}

// Aggregator runs one analytics pass for a date.
type Aggregator interface {
	Run(ctx context.Context, date time.Time) (*app.AggregationReport, error)
}

type NotificationScheduler struct {
	cronEngine        *cron.Cron
	dispatcher        Dispatcher
	aggregator        Aggregator
	locker            cache.Locker
	logger            *logrus.Entry
	cronSpecDispatch  string
	cronSpecAggregate string
	dispatchTimeout   time.Duration
	aggregateTimeout  time.Duration
	now               func() time.Time
}

func NewNotificationScheduler(
	dispatcher Dispatcher,
	aggregator Aggregator,
	locker cache.Locker,
	logger *logrus.Entry,
	cronSpecDispatch string, // e.g., "* * * * *" (every minute)
	cronSpecAggregate string, // e.g., "15 0 * * *" (00:15 daily)
) *NotificationScheduler {
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	return &NotificationScheduler{
		cronEngine:        cron.New(cron.WithLocation(time.UTC)),
		dispatcher:        dispatcher,
		aggregator:        aggregator,
		locker:            locker,
		logger:            logger,
		cronSpecDispatch:  cronSpecDispatch,
		cronSpecAggregate: cronSpecAggregate,
		dispatchTimeout:   5 * time.Minute,
		aggregateTimeout:  30 * time.Minute,
		now:               time.Now,
	}
}

// Start registers both jobs and starts the cron engine. An invalid cron
// spec is returned as an error.
func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecDispatch, func() {
		s.runDispatch(context.Background())
	}); err != nil {
		return fmt.Errorf("could not add dispatch cron job: %w", err)
	}

	// The aggregation job covers the day that just ended.
	if _, err := s.cronEngine.AddFunc(s.cronSpecAggregate, func() {
		s.runAggregate(context.Background(), s.now().UTC().AddDate(0, 0, -1))
	}); err != nil {
		return fmt.Errorf("could not add aggregation cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"dispatch":  s.cronSpecDispatch,
		"aggregate": s.cronSpecAggregate,
	}).Info("Notification scheduler started with jobs.")
	return nil
}

func (s *NotificationScheduler) runDispatch(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.dispatchTimeout)
	defer cancel()
	log := s.logger.WithField("job", "dispatch")

	release, err := s.locker.Acquire(ctx, DispatchLockKey, s.dispatchTimeout)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			log.Debug("Previous dispatch still running, skipping trigger")
			return
		}
		log.WithError(err).Error("Could not take dispatch lock")
		return
	}
	defer release()

	if _, err := s.dispatcher.RunCycle(ctx); err != nil {
		log.WithError(err).Error("Dispatch cycle failed")
	}
}

func (s *NotificationScheduler) runAggregate(parent context.Context, date time.Time) {
	ctx, cancel := context.WithTimeout(parent, s.aggregateTimeout)
	defer cancel()
	log := s.logger.WithFields(logrus.Fields{"job": "aggregate", "analysis_date": date.Format("2006-01-02")})

	release, err := s.locker.Acquire(ctx, AggregateLockKey, s.aggregateTimeout)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			log.Info("Aggregation already running elsewhere, skipping trigger")
			return
		}
		log.WithError(err).Error("Could not take aggregation lock")
		return
	}
	defer release()

	if _, err := s.aggregator.Run(ctx, date); err != nil {
		log.WithError(err).Error("Aggregation run failed")
	}
}

func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Notification scheduler gracefully stopped.")
}
