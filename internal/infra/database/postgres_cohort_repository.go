package database

import (
	"context"
	"database/sql"
	"fmt"

	"sendtime_notifier/internal/domain/cohort"
)

const cohortColumns = `user_id, cohort_name, send_hour_min, send_hour_max, assigned_at,
	emails_sent, emails_clicked, click_rate, avg_time_to_click, updated_at`

type PostgresCohortRepository struct {
	db *sql.DB
}

func NewPostgresCohortRepository(db *sql.DB) *PostgresCohortRepository {
	return &PostgresCohortRepository{db: db}
}

func (r *PostgresCohortRepository) GetByUserID(ctx context.Context, userID string) (*cohort.Cohort, error) {
	c := &cohort.Cohort{}
	err := r.db.QueryRowContext(ctx, `SELECT `+cohortColumns+` FROM send_time_cohorts WHERE user_id = $1`, userID).Scan(
		&c.UserID, &c.CohortName, &c.SendHourMin, &c.SendHourMax, &c.AssignedAt,
		&c.EmailsSent, &c.EmailsClicked, &c.ClickRate, &c.AvgTimeToClick, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cohort.ErrCohortNotFound
		}
		return nil, fmt.Errorf("error getting cohort: %w", err)
	}
	return c, nil
}

// CreateIfAbsent relies on the primary key: a concurrent first send for the
// same user loses the insert and reads the winner's row.
func (r *PostgresCohortRepository) CreateIfAbsent(ctx context.Context, c *cohort.Cohort) (*cohort.Cohort, error) {
	query := `INSERT INTO send_time_cohorts (user_id, cohort_name, send_hour_min, send_hour_max, assigned_at)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, c.UserID, c.CohortName, c.SendHourMin, c.SendHourMax, c.AssignedAt.UTC()); err != nil {
		return nil, fmt.Errorf("error creating cohort: %w", err)
	}
	return r.GetByUserID(ctx, c.UserID)
}

func (r *PostgresCohortRepository) UpdateCounters(ctx context.Context, c *cohort.Cohort) error {
	query := `UPDATE send_time_cohorts
               SET emails_sent = $2, emails_clicked = $3, click_rate = $4, avg_time_to_click = $5, updated_at = NOW()
               WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, c.UserID, c.EmailsSent, c.EmailsClicked, c.ClickRate, c.AvgTimeToClick)
	if err != nil {
		return fmt.Errorf("error updating cohort counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cohort.ErrCohortNotFound
	}
	return nil
}

func (r *PostgresCohortRepository) List(ctx context.Context) ([]*cohort.Cohort, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cohortColumns+` FROM send_time_cohorts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("error listing cohorts: %w", err)
	}
	defer rows.Close()
	out := make([]*cohort.Cohort, 0)
	for rows.Next() {
		c := &cohort.Cohort{}
		if err := rows.Scan(&c.UserID, &c.CohortName, &c.SendHourMin, &c.SendHourMax, &c.AssignedAt,
			&c.EmailsSent, &c.EmailsClicked, &c.ClickRate, &c.AvgTimeToClick, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning cohort row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cohort rows: %w", err)
	}
	return out, nil
}
