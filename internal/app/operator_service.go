package app

import (
	"context"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/notification"
)

// Custom application-level errors for operator service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// OperatorService gates operator actions behind the configured admin ID.
type OperatorService struct {
	notifications   NotificationService
	analytics       *AnalyticsService
	adminTelegramID int64
}

func NewOperatorService(ns NotificationService, as *AnalyticsService, adminID int64) *OperatorService {
	return &OperatorService{
		notifications:   ns,
		analytics:       as,
		adminTelegramID: adminID,
	}
}

// IsAdmin reports whether id belongs to the operator.
func (s *OperatorService) IsAdmin(id int64) bool {
	return s.adminTelegramID != 0 && id == s.adminTelegramID
}

// Report returns the analytics report for date.
func (s *OperatorService) Report(ctx context.Context, performingAdminID int64, date time.Time) (*AnalyticsReport, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	return s.analytics.Report(ctx, date)
}

// Stats returns queue counts for a user.
func (s *OperatorService) Stats(ctx context.Context, performingAdminID int64, userID string, days int) (*notification.Stats, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	return s.notifications.GetNotificationStats(ctx, userID, days)
}

// Cancel cancels a pending queue entry on the operator's behalf.
func (s *OperatorService) Cancel(ctx context.Context, performingAdminID int64, entryID int64) error {
	if !s.IsAdmin(performingAdminID) {
		return ErrAdminNotAuthorized
	}
	return s.notifications.CancelNotification(ctx, entryID)
}

// SetOptimization flips personalized send times for date. This is the only
// path that changes the flag; the recommendation is advisory.
func (s *OperatorService) SetOptimization(ctx context.Context, performingAdminID int64, date time.Time, enabled bool) error {
	if !s.IsAdmin(performingAdminID) {
		return ErrAdminNotAuthorized
	}
	return s.analytics.SetOptimization(ctx, date, enabled)
}
