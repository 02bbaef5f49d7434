package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/cohort"
)

const cohortColumns = `user_id, cohort_name, send_hour_min, send_hour_max, assigned_at,
	emails_sent, emails_clicked, click_rate, avg_time_to_click, updated_at`

type CohortRepository struct {
	db *sql.DB
}

func NewCohortRepository(db *sql.DB) *CohortRepository {
	return &CohortRepository{db: db}
}

func (r *CohortRepository) GetByUserID(ctx context.Context, userID string) (*cohort.Cohort, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cohortColumns+` FROM send_time_cohorts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting cohort: %w", err)
	}
	defer rows.Close()
	cohorts, err := scanCohorts(rows)
	if err != nil {
		return nil, err
	}
	if len(cohorts) == 0 {
		return nil, cohort.ErrCohortNotFound
	}
	return cohorts[0], nil
}

func (r *CohortRepository) CreateIfAbsent(ctx context.Context, c *cohort.Cohort) (*cohort.Cohort, error) {
	now := time.Now().UTC()
	if c.AssignedAt.IsZero() {
		c.AssignedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO send_time_cohorts (user_id, cohort_name, send_hour_min, send_hour_max, assigned_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		c.UserID, c.CohortName, c.SendHourMin, c.SendHourMax, toMillis(c.AssignedAt), toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating cohort: %w", err)
	}
	return r.GetByUserID(ctx, c.UserID)
}

func (r *CohortRepository) UpdateCounters(ctx context.Context, c *cohort.Cohort) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE send_time_cohorts
		 SET emails_sent = ?, emails_clicked = ?, click_rate = ?, avg_time_to_click = ?, updated_at = ?
		 WHERE user_id = ?`,
		c.EmailsSent, c.EmailsClicked, c.ClickRate, c.AvgTimeToClick, toMillis(c.UpdatedAt), c.UserID,
	)
	if err != nil {
		return fmt.Errorf("error updating cohort counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cohort.ErrCohortNotFound
	}
	return nil
}

func (r *CohortRepository) List(ctx context.Context) ([]*cohort.Cohort, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cohortColumns+` FROM send_time_cohorts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("error listing cohorts: %w", err)
	}
	defer rows.Close()
	return scanCohorts(rows)
}

func scanCohorts(rows *sql.Rows) ([]*cohort.Cohort, error) {
	out := make([]*cohort.Cohort, 0)
	for rows.Next() {
		var (
			c                 cohort.Cohort
			assigned, updated int64
		)
		if err := rows.Scan(&c.UserID, &c.CohortName, &c.SendHourMin, &c.SendHourMax, &assigned,
			&c.EmailsSent, &c.EmailsClicked, &c.ClickRate, &c.AvgTimeToClick, &updated); err != nil {
			return nil, fmt.Errorf("error scanning cohort row: %w", err)
		}
		c.AssignedAt = fromMillis(assigned)
		c.UpdatedAt = fromMillis(updated)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cohort rows: %w", err)
	}
	return out, nil
}
