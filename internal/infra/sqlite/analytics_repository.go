package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/analytics"
)

type AnalyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) ReplaceHourly(ctx context.Context, date time.Time, rows []analytics.HourlyAnalytics) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for hourly upsert: %w", err)
	}
	defer tx.Rollback()

	day := dateKey(date)
	var (
		existing int
		carried  bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT optimization_enabled FROM send_time_analytics WHERE analysis_date = ? LIMIT 1`, day).Scan(&existing)
	switch {
	case err == nil:
		carried = true
	case err != sql.ErrNoRows:
		return fmt.Errorf("error reading optimization flag for %s: %w", day, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM send_time_analytics WHERE analysis_date = ?`, day); err != nil {
		return fmt.Errorf("error clearing hourly rows for %s: %w", day, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO send_time_analytics (analysis_date, hour, emails_sent, emails_opened, emails_clicked,
			emails_converted, open_rate, click_rate, conversion_rate, sample_size, variance,
			engagement_score, optimization_enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(analysis_date, hour) DO UPDATE SET
			emails_sent = excluded.emails_sent, emails_opened = excluded.emails_opened,
			emails_clicked = excluded.emails_clicked, emails_converted = excluded.emails_converted,
			open_rate = excluded.open_rate, click_rate = excluded.click_rate,
			conversion_rate = excluded.conversion_rate, sample_size = excluded.sample_size,
			variance = excluded.variance, engagement_score = excluded.engagement_score,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare hourly upsert: %w", err)
	}
	defer stmt.Close()

	for _, h := range rows {
		if h.UpdatedAt.IsZero() {
			h.UpdatedAt = time.Now().UTC()
		}
		if carried {
			h.OptimizationEnabled = existing != 0
		}
		if _, err := stmt.ExecContext(ctx, day, h.Hour, h.EmailsSent, h.EmailsOpened,
			h.EmailsClicked, h.EmailsConverted, h.OpenRate, h.ClickRate, h.ConversionRate, h.SampleSize,
			h.Variance, h.EngagementScore, boolInt(h.OptimizationEnabled), toMillis(h.UpdatedAt)); err != nil {
			return fmt.Errorf("error upserting hourly row (%s, %d): %w", day, h.Hour, err)
		}
	}
	return tx.Commit()
}

func (r *AnalyticsRepository) ReplaceDemographic(ctx context.Context, date time.Time, rows []analytics.DemographicPerformance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for demographic upsert: %w", err)
	}
	defer tx.Rollback()

	day := dateKey(date)
	if _, err := tx.ExecContext(ctx, `DELETE FROM demographic_performance WHERE analysis_date = ?`, day); err != nil {
		return fmt.Errorf("error clearing demographic rows for %s: %w", day, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO demographic_performance (analysis_date, segment_type, segment_value, emails_sent,
			emails_opened, emails_clicked, emails_converted, click_rate, optimal_send_hour,
			optimal_hour_click_rate, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(analysis_date, segment_type, segment_value) DO UPDATE SET
			emails_sent = excluded.emails_sent, emails_opened = excluded.emails_opened,
			emails_clicked = excluded.emails_clicked, emails_converted = excluded.emails_converted,
			click_rate = excluded.click_rate, optimal_send_hour = excluded.optimal_send_hour,
			optimal_hour_click_rate = excluded.optimal_hour_click_rate, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare demographic upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range rows {
		if d.UpdatedAt.IsZero() {
			d.UpdatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, day, string(d.SegmentType), d.SegmentValue,
			d.EmailsSent, d.EmailsOpened, d.EmailsClicked, d.EmailsConverted, d.ClickRate,
			d.OptimalSendHour, d.OptimalHourClickRate, toMillis(d.UpdatedAt)); err != nil {
			return fmt.Errorf("error upserting demographic row (%s, %s=%s): %w",
				day, d.SegmentType, d.SegmentValue, err)
		}
	}
	return tx.Commit()
}

func (r *AnalyticsRepository) ListHourly(ctx context.Context, date time.Time) ([]analytics.HourlyAnalytics, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT analysis_date, hour, emails_sent, emails_opened, emails_clicked, emails_converted,
			open_rate, click_rate, conversion_rate, sample_size, variance, engagement_score,
			optimization_enabled, updated_at
		 FROM send_time_analytics WHERE analysis_date = ? ORDER BY hour`, dateKey(date))
	if err != nil {
		return nil, fmt.Errorf("error listing hourly analytics: %w", err)
	}
	defer rows.Close()
	out := make([]analytics.HourlyAnalytics, 0, 24)
	for rows.Next() {
		var (
			h       analytics.HourlyAnalytics
			day     string
			enabled int
			updated int64
		)
		if err := rows.Scan(&day, &h.Hour, &h.EmailsSent, &h.EmailsOpened, &h.EmailsClicked, &h.EmailsConverted,
			&h.OpenRate, &h.ClickRate, &h.ConversionRate, &h.SampleSize, &h.Variance, &h.EngagementScore,
			&enabled, &updated); err != nil {
			return nil, fmt.Errorf("error scanning hourly row: %w", err)
		}
		if h.AnalysisDate, err = parseDate(day); err != nil {
			return nil, fmt.Errorf("error parsing analysis date %q: %w", day, err)
		}
		h.OptimizationEnabled = enabled != 0
		h.UpdatedAt = fromMillis(updated)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hourly rows: %w", err)
	}
	return out, nil
}

func (r *AnalyticsRepository) ListDemographic(ctx context.Context, date time.Time) ([]analytics.DemographicPerformance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+demographicColumns+`
		 FROM demographic_performance WHERE analysis_date = ? ORDER BY segment_type, segment_value`, dateKey(date))
	if err != nil {
		return nil, fmt.Errorf("error listing demographic analytics: %w", err)
	}
	defer rows.Close()
	out := make([]analytics.DemographicPerformance, 0)
	for rows.Next() {
		d, err := scanDemographic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating demographic rows: %w", err)
	}
	return out, nil
}

func (r *AnalyticsRepository) LatestOptimizationFlag(ctx context.Context, date time.Time) (bool, error) {
	var enabled int
	err := r.db.QueryRowContext(ctx,
		`SELECT optimization_enabled FROM send_time_analytics
		 WHERE analysis_date <= ? ORDER BY analysis_date DESC, hour ASC LIMIT 1`, dateKey(date)).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading optimization flag: %w", err)
	}
	return enabled != 0, nil
}

func (r *AnalyticsRepository) SetOptimizationEnabled(ctx context.Context, date time.Time, enabled bool) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE send_time_analytics SET optimization_enabled = ?, updated_at = ? WHERE analysis_date = ?`,
		boolInt(enabled), toMillis(time.Now()), dateKey(date))
	if err != nil {
		return 0, fmt.Errorf("error setting optimization flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return int(n), nil
}

func (r *AnalyticsRepository) LatestDemographic(ctx context.Context, segmentType analytics.SegmentType, segmentValue string, date time.Time) (*analytics.DemographicPerformance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+demographicColumns+`
		 FROM demographic_performance
		 WHERE segment_type = ? AND segment_value = ? AND analysis_date <= ?
		 ORDER BY analysis_date DESC LIMIT 1`, string(segmentType), segmentValue, dateKey(date))
	if err != nil {
		return nil, fmt.Errorf("error reading latest demographic row: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading latest demographic row: %w", err)
		}
		return nil, analytics.ErrNoAnalytics
	}
	return scanDemographic(rows)
}

const demographicColumns = `analysis_date, segment_type, segment_value, emails_sent, emails_opened,
	emails_clicked, emails_converted, click_rate, optimal_send_hour, optimal_hour_click_rate, updated_at`

func scanDemographic(rows *sql.Rows) (*analytics.DemographicPerformance, error) {
	var (
		d       analytics.DemographicPerformance
		day     string
		updated int64
	)
	if err := rows.Scan(&day, &d.SegmentType, &d.SegmentValue, &d.EmailsSent, &d.EmailsOpened,
		&d.EmailsClicked, &d.EmailsConverted, &d.ClickRate, &d.OptimalSendHour, &d.OptimalHourClickRate,
		&updated); err != nil {
		return nil, fmt.Errorf("error scanning demographic row: %w", err)
	}
	var err error
	if d.AnalysisDate, err = parseDate(day); err != nil {
		return nil, fmt.Errorf("error parsing analysis date %q: %w", day, err)
	}
	d.UpdatedAt = fromMillis(updated)
	return &d, nil
}
