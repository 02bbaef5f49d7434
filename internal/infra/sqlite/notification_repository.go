package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"sendtime_notifier/internal/domain/notification"
)

const queueColumns = `id, user_id, channel, type, status, priority, subject, body, metadata,
	scheduled_for, sent_at, failed_at, failure_reason, retry_count, created_at, claim_token, claimed_until`

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Enqueue(ctx context.Context, e *notification.QueueEntry) (int64, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return 0, fmt.Errorf("error encoding queue entry metadata: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_queue (user_id, channel, type, status, priority, subject, body, metadata,
			scheduled_for, retry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Channel, e.Type, e.Status, e.Priority, e.Subject, e.Body, string(meta),
		toMillis(e.ScheduledFor), e.RetryCount, toMillis(e.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("error enqueueing notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading queue entry id: %w", err)
	}
	e.ID = id
	return id, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*notification.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+queueColumns+` FROM notification_queue WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("error getting queue entry by ID: %w", err)
	}
	defer rows.Close()
	entries, err := scanQueueEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, notification.ErrEntryNotFound
	}
	return entries[0], nil
}

// ClaimDue leases due entries with one UPDATE ... RETURNING statement. SQLite
// serializes writers, so two concurrent claims can never see the same row as
// unleased.
func (r *NotificationRepository) ClaimDue(ctx context.Context, limit int, now time.Time, claimToken string, lease time.Duration) ([]*notification.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	nowMs := toMillis(now)
	rows, err := r.db.QueryContext(ctx,
		`UPDATE notification_queue
		 SET claim_token = ?, claimed_until = ?
		 WHERE id IN (
			SELECT id FROM notification_queue
			WHERE status = 'pending' AND scheduled_for <= ?
			  AND (claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY priority ASC, scheduled_for ASC, id ASC
			LIMIT ?)
		 RETURNING `+queueColumns,
		claimToken, toMillis(now.Add(lease)), nowMs, nowMs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error claiming due notifications: %w", err)
	}
	defer rows.Close()
	entries, err := scanQueueEntries(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledFor.Equal(b.ScheduledFor) {
			return a.ScheduledFor.Before(b.ScheduledFor)
		}
		return a.ID < b.ID
	})
	return entries, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return r.transition(ctx, id,
		`UPDATE notification_queue
		 SET status = 'sent', sent_at = ?, claim_token = NULL, claimed_until = NULL
		 WHERE id = ? AND status = 'pending'`,
		toMillis(at), id)
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error {
	return r.transition(ctx, id,
		`UPDATE notification_queue
		 SET status = 'failed', failed_at = ?, failure_reason = ?, claim_token = NULL, claimed_until = NULL
		 WHERE id = ? AND status = 'pending'`,
		toMillis(at), reason, id)
}

func (r *NotificationRepository) Reschedule(ctx context.Context, id int64, at time.Time, reason string, countsAsRetry bool, now time.Time) error {
	if at.Before(now) {
		at = now
	}
	if countsAsRetry {
		return r.transition(ctx, id,
			`UPDATE notification_queue
			 SET scheduled_for = ?, retry_count = retry_count + 1, failure_reason = ?,
				 claim_token = NULL, claimed_until = NULL
			 WHERE id = ? AND status = 'pending' AND retry_count < ?`,
			toMillis(at), reason, id, notification.MaxRetryCount)
	}
	return r.transition(ctx, id,
		`UPDATE notification_queue
		 SET scheduled_for = ?, failure_reason = ?, claim_token = NULL, claimed_until = NULL
		 WHERE id = ? AND status = 'pending'`,
		toMillis(at), reason, id)
}

func (r *NotificationRepository) Cancel(ctx context.Context, id int64, reason, claimToken string, now time.Time) error {
	return r.transition(ctx, id,
		`UPDATE notification_queue
		 SET status = 'cancelled', failure_reason = ?, claim_token = NULL, claimed_until = NULL
		 WHERE id = ? AND status = 'pending'
		   AND (claimed_until IS NULL OR claimed_until <= ? OR (? <> '' AND claim_token = ?))`,
		reason, id, toMillis(now), claimToken, claimToken)
}

func (r *NotificationRepository) Stats(ctx context.Context, userID string, since time.Time) ([]notification.StatsRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel, status, COUNT(*) FROM notification_queue
		 WHERE user_id = ? AND created_at >= ?
		 GROUP BY channel, status ORDER BY channel, status`,
		userID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("error querying notification stats: %w", err)
	}
	defer rows.Close()
	out := make([]notification.StatsRow, 0)
	for rows.Next() {
		var sr notification.StatsRow
		if err := rows.Scan(&sr.Channel, &sr.Status, &sr.Count); err != nil {
			return nil, fmt.Errorf("error scanning stats row: %w", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}
	return out, nil
}

// transition runs a guarded UPDATE. Zero affected rows means either the
// entry does not exist or it is not in a state that allows the change.
func (r *NotificationRepository) transition(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating queue entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM notification_queue WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return notification.ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("error checking queue entry %d: %w", id, err)
	}
	return fmt.Errorf("%w: entry %d is %s", notification.ErrInvalidTransition, id, status)
}

func scanQueueEntries(rows *sql.Rows) ([]*notification.QueueEntry, error) {
	entries := make([]*notification.QueueEntry, 0)
	for rows.Next() {
		var (
			e                       notification.QueueEntry
			meta                    string
			scheduled, created      int64
			sentAt, failedAt, until sql.NullInt64
			token                   sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Channel, &e.Type, &e.Status, &e.Priority, &e.Subject, &e.Body, &meta,
			&scheduled, &sentAt, &failedAt, &e.FailureReason, &e.RetryCount, &created, &token, &until,
		); err != nil {
			return nil, fmt.Errorf("error scanning queue entry row: %w", err)
		}
		e.ScheduledFor = fromMillis(scheduled)
		e.CreatedAt = fromMillis(created)
		e.SentAt = nullTime(sentAt)
		e.FailedAt = nullTime(failedAt)
		e.ClaimedUntil = nullTime(until)
		e.ClaimToken = token.String
		e.Metadata = map[string]string{}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, fmt.Errorf("error decoding metadata of entry %d: %w", e.ID, err)
			}
			if e.Metadata == nil {
				e.Metadata = map[string]string{}
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entry rows: %w", err)
	}
	return entries, nil
}
