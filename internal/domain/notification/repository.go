// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Repository persists queue entries. Every transition method is guarded:
// it only applies to an entry whose status is pending and returns
// ErrInvalidTransition otherwise (ErrEntryNotFound when the id is unknown).
type Repository interface {
	Enqueue(ctx context.Context, e *QueueEntry) (int64, error)
	GetByID(ctx context.Context, id int64) (*QueueEntry, error)

	// ClaimDue atomically leases up to limit pending entries with
	// scheduled_for <= now that are not under an active lease. The same
	// entry is never returned to two callers while its lease is active.
	ClaimDue(ctx context.Context, limit int, now time.Time, claimToken string, lease time.Duration) ([]*QueueEntry, error)

	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error
	// Reschedule moves a pending entry to a new instant and records reason
	// as its failure reason. The retry counter is incremented only when
	// countsAsRetry is set. Instants earlier than now are clamped to now.
	Reschedule(ctx context.Context, id int64, at time.Time, reason string, countsAsRetry bool, now time.Time) error
	// Cancel refuses entries held under an active lease unless claimToken
	// is the token of that lease. External callers pass an empty token.
	Cancel(ctx context.Context, id int64, reason, claimToken string, now time.Time) error

	Stats(ctx context.Context, userID string, since time.Time) ([]StatsRow, error)
}

// StatsRow is one (channel, status, count) group.
type StatsRow struct {
	Channel Channel
	Status  Status
	Count   int
}
