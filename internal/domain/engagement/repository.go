package engagement

import (
	"context"
	"time"
)

// Repository stores engagement events.
type Repository interface {
	// Create inserts the send event. A second event for the same
	// notification id is ignored and the existing row is returned.
	Create(ctx context.Context, e *Event) error
	GetByNotificationID(ctx context.Context, notificationID int64) (*Event, error)
	// UpdateSignals writes only the opened/clicked/converted columns.
	UpdateSignals(ctx context.Context, e *Event) error
	// ListSentBetween streams events with from <= sent_at < to. Rows that
	// cannot be decoded are passed to onBadRow and skipped.
	ListSentBetween(ctx context.Context, from, to time.Time, onBadRow func(id int64, err error)) ([]*Event, error)
}
