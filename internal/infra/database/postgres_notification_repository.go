// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/notification"
)

const queueColumns = `id, user_id, channel, type, status, priority, subject, body, metadata,
	scheduled_for, sent_at, failed_at, failure_reason, retry_count, created_at, claim_token, claimed_until`

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Enqueue(ctx context.Context, e *notification.QueueEntry) (int64, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return 0, fmt.Errorf("error encoding queue entry metadata: %w", err)
	}
	query := `INSERT INTO notification_queue (user_id, channel, type, status, priority, subject, body, metadata,
                scheduled_for, retry_count)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
               RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query,
		e.UserID, e.Channel, e.Type, e.Status, e.Priority, e.Subject, e.Body, string(meta),
		e.ScheduledFor.UTC(), e.RetryCount,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("error enqueueing notification: %w", err)
	}
	return e.ID, nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id int64) (*notification.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+queueColumns+` FROM notification_queue WHERE id = $1`, id)
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

// ClaimDue leases due rows in one statement. SKIP LOCKED makes a concurrent
// claimer pass over rows another transaction is already leasing instead of
// waiting for them and then returning them a second time.
func (r *PostgresNotificationRepository) ClaimDue(ctx context.Context, limit int, now time.Time, claimToken string, lease time.Duration) ([]*notification.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `WITH due AS (
                SELECT id FROM notification_queue
                WHERE status = 'pending' AND scheduled_for <= $1
                  AND (claimed_until IS NULL OR claimed_until <= $1)
                ORDER BY priority ASC, scheduled_for ASC, id ASC
                LIMIT $2
                FOR UPDATE SKIP LOCKED
               )
               UPDATE notification_queue q
               SET claim_token = $3, claimed_until = $4
               FROM due
               WHERE q.id = due.id
               RETURNING ` + prefixed("q.", queueColumns)
	rows, err := r.db.QueryContext(ctx, query, now.UTC(), limit, claimToken, now.Add(lease).UTC())
	if err != nil {
		return nil, fmt.Errorf("error claiming due notifications: %w", err)
	}
	defer rows.Close()
	entries, err := scanQueueEntries(rows)
	if err != nil {
		return nil, err
	}
	sortClaimed(entries)
	return entries, nil
}

func (r *PostgresNotificationRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return r.transition(ctx, id, `UPDATE notification_queue
               SET status = 'sent', sent_at = $2, claim_token = NULL, claimed_until = NULL
               WHERE id = $1 AND status = 'pending'`, at.UTC())
}

func (r *PostgresNotificationRepository) MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error {
	return r.transition(ctx, id, `UPDATE notification_queue
               SET status = 'failed', failed_at = $2, failure_reason = $3, claim_token = NULL, claimed_until = NULL
               WHERE id = $1 AND status = 'pending'`, at.UTC(), reason)
}

func (r *PostgresNotificationRepository) Reschedule(ctx context.Context, id int64, at time.Time, reason string, countsAsRetry bool, now time.Time) error {
	if at.Before(now) {
		at = now
	}
	if countsAsRetry {
		return r.transition(ctx, id, `UPDATE notification_queue
               SET scheduled_for = $2, retry_count = retry_count + 1, failure_reason = $3,
                   claim_token = NULL, claimed_until = NULL
               WHERE id = $1 AND status = 'pending' AND retry_count < $4`,
			at.UTC(), reason, notification.MaxRetryCount)
	}
	return r.transition(ctx, id, `UPDATE notification_queue
               SET scheduled_for = $2, failure_reason = $3, claim_token = NULL, claimed_until = NULL
               WHERE id = $1 AND status = 'pending'`, at.UTC(), reason)
}

func (r *PostgresNotificationRepository) Cancel(ctx context.Context, id int64, reason, claimToken string, now time.Time) error {
	return r.transition(ctx, id, `UPDATE notification_queue
               SET status = 'cancelled', failure_reason = $2, claim_token = NULL, claimed_until = NULL
               WHERE id = $1 AND status = 'pending'
                 AND (claimed_until IS NULL OR claimed_until <= $3 OR ($4 <> '' AND claim_token = $4))`,
		reason, now.UTC(), claimToken)
}

func (r *PostgresNotificationRepository) Stats(ctx context.Context, userID string, since time.Time) ([]notification.StatsRow, error) {
	query := `SELECT channel, status, COUNT(*) FROM notification_queue
               WHERE user_id = $1 AND created_at >= $2
               GROUP BY channel, status ORDER BY channel, status`
	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC())
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

// transition runs a guarded UPDATE whose first placeholder is the entry id.
func (r *PostgresNotificationRepository) transition(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
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
	err = r.db.QueryRowContext(ctx, `SELECT status FROM notification_queue WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return notification.ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("error checking queue entry %d: %w", id, err)
	}
	return fmt.Errorf("%w: entry %d is %s", notification.ErrInvalidTransition, id, status)
}

// Helper to scan multiple rows
func scanQueueEntries(rows *sql.Rows) ([]*notification.QueueEntry, error) {
	entries := make([]*notification.QueueEntry, 0)
	for rows.Next() {
		var (
			e     notification.QueueEntry
			meta  []byte
			token sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Channel, &e.Type, &e.Status, &e.Priority, &e.Subject, &e.Body, &meta,
			&e.ScheduledFor, &e.SentAt, &e.FailedAt, &e.FailureReason, &e.RetryCount, &e.CreatedAt,
			&token, &e.ClaimedUntil,
		); err != nil {
			return nil, fmt.Errorf("error scanning queue entry row: %w", err)
		}
		e.ClaimToken = token.String
		e.Metadata = map[string]string{}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
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
