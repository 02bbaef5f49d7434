package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/analytics"

	"github.com/lib/pq" // For pq.Array
)

type PostgresAnalyticsRepository struct {
	db *sql.DB
}

func NewPostgresAnalyticsRepository(db *sql.DB) *PostgresAnalyticsRepository {
	return &PostgresAnalyticsRepository{db: db}
}

// ReplaceHourly clears the date and writes every row in one statement by
// unnesting parallel arrays. The date's optimization flag survives the swap.
func (r *PostgresAnalyticsRepository) ReplaceHourly(ctx context.Context, date time.Time, rows []analytics.HourlyAnalytics) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for hourly upsert: %w", err)
	}
	defer txn.Rollback()

	day := date.UTC().Format("2006-01-02")
	var existing sql.NullBool
	err = txn.QueryRowContext(ctx,
		`SELECT optimization_enabled FROM send_time_analytics WHERE analysis_date = $1 LIMIT 1 FOR UPDATE`,
		day).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("error reading optimization flag for %s: %w", day, err)
	}
	if _, err := txn.ExecContext(ctx, `DELETE FROM send_time_analytics WHERE analysis_date = $1`, day); err != nil {
		return fmt.Errorf("error clearing hourly rows for %s: %w", day, err)
	}
	if len(rows) == 0 {
		return txn.Commit()
	}

	var (
		dates                         []string
		hours, sent, opened, clicked  []int64
		converted, samples            []int64
		openRate, clickRate, convRate []float64
		variance, score               []float64
		enabled                       []bool
	)
	for _, h := range rows {
		if existing.Valid {
			h.OptimizationEnabled = existing.Bool
		}
		dates = append(dates, day)
		hours = append(hours, int64(h.Hour))
		sent = append(sent, int64(h.EmailsSent))
		opened = append(opened, int64(h.EmailsOpened))
		clicked = append(clicked, int64(h.EmailsClicked))
		converted = append(converted, int64(h.EmailsConverted))
		samples = append(samples, int64(h.SampleSize))
		openRate = append(openRate, h.OpenRate)
		clickRate = append(clickRate, h.ClickRate)
		convRate = append(convRate, h.ConversionRate)
		variance = append(variance, h.Variance)
		score = append(score, h.EngagementScore)
		enabled = append(enabled, h.OptimizationEnabled)
	}
	query := `INSERT INTO send_time_analytics (analysis_date, hour, emails_sent, emails_opened, emails_clicked,
                emails_converted, open_rate, click_rate, conversion_rate, sample_size, variance,
                engagement_score, optimization_enabled, updated_at)
               SELECT d, h, s, o, c, cv, orate, crate, cvrate, ss, v, es, en, NOW()
               FROM unnest($1::date[], $2::int[], $3::int[], $4::int[], $5::int[], $6::int[],
                           $7::float8[], $8::float8[], $9::float8[], $10::int[], $11::float8[],
                           $12::float8[], $13::bool[])
                 AS t(d, h, s, o, c, cv, orate, crate, cvrate, ss, v, es, en)
               ON CONFLICT (analysis_date, hour) DO UPDATE SET
                emails_sent = EXCLUDED.emails_sent, emails_opened = EXCLUDED.emails_opened,
                emails_clicked = EXCLUDED.emails_clicked, emails_converted = EXCLUDED.emails_converted,
                open_rate = EXCLUDED.open_rate, click_rate = EXCLUDED.click_rate,
                conversion_rate = EXCLUDED.conversion_rate, sample_size = EXCLUDED.sample_size,
                variance = EXCLUDED.variance, engagement_score = EXCLUDED.engagement_score,
                updated_at = NOW()`
	_, err = txn.ExecContext(ctx, query,
		pq.Array(dates), pq.Array(hours), pq.Array(sent), pq.Array(opened), pq.Array(clicked),
		pq.Array(converted), pq.Array(openRate), pq.Array(clickRate), pq.Array(convRate),
		pq.Array(samples), pq.Array(variance), pq.Array(score), pq.Array(enabled),
	)
	if err != nil {
		return fmt.Errorf("error upserting hourly analytics: %w", err)
	}
	return txn.Commit()
}

func (r *PostgresAnalyticsRepository) ReplaceDemographic(ctx context.Context, date time.Time, rows []analytics.DemographicPerformance) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for demographic upsert: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	day := date.UTC().Format("2006-01-02")
	if _, err := txn.ExecContext(ctx, `DELETE FROM demographic_performance WHERE analysis_date = $1`, day); err != nil {
		return fmt.Errorf("error clearing demographic rows for %s: %w", day, err)
	}

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO demographic_performance (analysis_date, segment_type, segment_value,
                emails_sent, emails_opened, emails_clicked, emails_converted, click_rate, optimal_send_hour,
                optimal_hour_click_rate, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
               ON CONFLICT (analysis_date, segment_type, segment_value) DO UPDATE SET
                emails_sent = EXCLUDED.emails_sent, emails_opened = EXCLUDED.emails_opened,
                emails_clicked = EXCLUDED.emails_clicked, emails_converted = EXCLUDED.emails_converted,
                click_rate = EXCLUDED.click_rate, optimal_send_hour = EXCLUDED.optimal_send_hour,
                optimal_hour_click_rate = EXCLUDED.optimal_hour_click_rate, updated_at = NOW()`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for demographic upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range rows {
		if _, err := stmt.ExecContext(ctx, day, string(d.SegmentType), d.SegmentValue,
			d.EmailsSent, d.EmailsOpened, d.EmailsClicked, d.EmailsConverted, d.ClickRate,
			d.OptimalSendHour, d.OptimalHourClickRate); err != nil {
			return fmt.Errorf("error upserting demographic row (%s=%s): %w", d.SegmentType, d.SegmentValue, err)
		}
	}
	return txn.Commit()
}

func (r *PostgresAnalyticsRepository) ListHourly(ctx context.Context, date time.Time) ([]analytics.HourlyAnalytics, error) {
	query := `SELECT analysis_date, hour, emails_sent, emails_opened, emails_clicked, emails_converted,
                open_rate, click_rate, conversion_rate, sample_size, variance, engagement_score,
                optimization_enabled, updated_at
               FROM send_time_analytics WHERE analysis_date = $1 ORDER BY hour`
	rows, err := r.db.QueryContext(ctx, query, date.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("error listing hourly analytics: %w", err)
	}
	defer rows.Close()
	out := make([]analytics.HourlyAnalytics, 0, 24)
	for rows.Next() {
		var h analytics.HourlyAnalytics
		if err := rows.Scan(&h.AnalysisDate, &h.Hour, &h.EmailsSent, &h.EmailsOpened, &h.EmailsClicked,
			&h.EmailsConverted, &h.OpenRate, &h.ClickRate, &h.ConversionRate, &h.SampleSize, &h.Variance,
			&h.EngagementScore, &h.OptimizationEnabled, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning hourly row: %w", err)
		}
		h.AnalysisDate = analytics.DateOf(h.AnalysisDate)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hourly rows: %w", err)
	}
	return out, nil
}

const demographicColumns = `analysis_date, segment_type, segment_value, emails_sent, emails_opened,
	emails_clicked, emails_converted, click_rate, optimal_send_hour, optimal_hour_click_rate, updated_at`

func (r *PostgresAnalyticsRepository) ListDemographic(ctx context.Context, date time.Time) ([]analytics.DemographicPerformance, error) {
	query := `SELECT ` + demographicColumns + ` FROM demographic_performance
               WHERE analysis_date = $1 ORDER BY segment_type, segment_value`
	rows, err := r.db.QueryContext(ctx, query, date.UTC().Format("2006-01-02"))
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

func (r *PostgresAnalyticsRepository) LatestOptimizationFlag(ctx context.Context, date time.Time) (bool, error) {
	query := `SELECT optimization_enabled FROM send_time_analytics
               WHERE analysis_date <= $1 ORDER BY analysis_date DESC, hour ASC LIMIT 1`
	var enabled bool
	err := r.db.QueryRowContext(ctx, query, date.UTC().Format("2006-01-02")).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading optimization flag: %w", err)
	}
	return enabled, nil
}

func (r *PostgresAnalyticsRepository) SetOptimizationEnabled(ctx context.Context, date time.Time, enabled bool) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE send_time_analytics SET optimization_enabled = $2, updated_at = NOW() WHERE analysis_date = $1`,
		date.UTC().Format("2006-01-02"), enabled)
	if err != nil {
		return 0, fmt.Errorf("error setting optimization flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return int(n), nil
}

func (r *PostgresAnalyticsRepository) LatestDemographic(ctx context.Context, segmentType analytics.SegmentType, segmentValue string, date time.Time) (*analytics.DemographicPerformance, error) {
	query := `SELECT ` + demographicColumns + ` FROM demographic_performance
               WHERE segment_type = $1 AND segment_value = $2 AND analysis_date <= $3
               ORDER BY analysis_date DESC LIMIT 1`
	rows, err := r.db.QueryContext(ctx, query, string(segmentType), segmentValue, date.UTC().Format("2006-01-02"))
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

func scanDemographic(rows *sql.Rows) (*analytics.DemographicPerformance, error) {
	var d analytics.DemographicPerformance
	if err := rows.Scan(&d.AnalysisDate, &d.SegmentType, &d.SegmentValue, &d.EmailsSent, &d.EmailsOpened,
		&d.EmailsClicked, &d.EmailsConverted, &d.ClickRate, &d.OptimalSendHour, &d.OptimalHourClickRate,
		&d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("error scanning demographic row: %w", err)
	}
	d.AnalysisDate = analytics.DateOf(d.AnalysisDate)
	return &d, nil
}
