package app

import (
	"errors"

	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/cohort"
	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/profile"
)

func isNotFound(err error) bool {
	return errors.Is(err, notification.ErrEntryNotFound) ||
		errors.Is(err, profile.ErrProfileNotFound) ||
		errors.Is(err, cohort.ErrCohortNotFound) ||
		errors.Is(err, engagement.ErrEventNotFound) ||
		errors.Is(err, analytics.ErrNoAnalytics)
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool { return isNotFound(err) }
