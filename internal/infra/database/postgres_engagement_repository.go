package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"
)

const eventColumns = `id, notification_id, user_id, channel, sent_at, send_hour, send_day_of_week,
	age_bracket, income_bracket, industry_bracket, cohort_name,
	opened, opened_at, clicked, clicked_at, converted, converted_at,
	time_to_open_min, time_to_click_min, time_to_convert_min,
	schema_version, policy_version, created_at`

type PostgresEngagementRepository struct {
	db *sql.DB
}

func NewPostgresEngagementRepository(db *sql.DB) *PostgresEngagementRepository {
	return &PostgresEngagementRepository{db: db}
}

func (r *PostgresEngagementRepository) Create(ctx context.Context, e *engagement.Event) error {
	query := `INSERT INTO engagement_events (notification_id, user_id, channel, sent_at, send_hour, send_day_of_week,
                age_bracket, income_bracket, industry_bracket, cohort_name,
                opened, opened_at, clicked, clicked_at, converted, converted_at,
                time_to_open_min, time_to_click_min, time_to_convert_min, schema_version, policy_version)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
               ON CONFLICT (notification_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		e.NotificationID, e.UserID, e.Channel, e.SentAt.UTC(), e.SendHour, int(e.SendDayOfWeek),
		e.Demographics.AgeBracket, e.Demographics.IncomeBracket, e.Demographics.IndustryBracket, e.CohortName,
		e.Opened, e.OpenedAt, e.Clicked, e.ClickedAt, e.Converted, e.ConvertedAt,
		e.TimeToOpenMin, e.TimeToClickMin, e.TimeToConvertMin, e.SchemaVersion, string(e.PolicyVersion),
	)
	if err != nil {
		return fmt.Errorf("error creating engagement event: %w", err)
	}
	stored, err := r.GetByNotificationID(ctx, e.NotificationID)
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

func (r *PostgresEngagementRepository) GetByNotificationID(ctx context.Context, notificationID int64) (*engagement.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM engagement_events WHERE notification_id = $1`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("error getting engagement event: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading engagement event: %w", err)
		}
		return nil, engagement.ErrEventNotFound
	}
	return scanEvent(rows)
}

func (r *PostgresEngagementRepository) UpdateSignals(ctx context.Context, e *engagement.Event) error {
	query := `UPDATE engagement_events
               SET opened = $2, opened_at = $3, clicked = $4, clicked_at = $5, converted = $6, converted_at = $7,
                   time_to_open_min = $8, time_to_click_min = $9, time_to_convert_min = $10
               WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, e.ID,
		e.Opened, e.OpenedAt, e.Clicked, e.ClickedAt, e.Converted, e.ConvertedAt,
		e.TimeToOpenMin, e.TimeToClickMin, e.TimeToConvertMin,
	)
	if err != nil {
		return fmt.Errorf("error updating engagement signals: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engagement.ErrEventNotFound
	}
	return nil
}

func (r *PostgresEngagementRepository) ListSentBetween(ctx context.Context, from, to time.Time, onBadRow func(id int64, err error)) ([]*engagement.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM engagement_events
               WHERE sent_at >= $1 AND sent_at < $2 ORDER BY sent_at, id`
	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("error listing engagement events: %w", err)
	}
	defer rows.Close()
	out := make([]*engagement.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			var bad *badRowError
			if errors.As(err, &bad) && onBadRow != nil {
				onBadRow(bad.id, bad.err)
				continue
			}
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating engagement events: %w", err)
	}
	return out, nil
}

type badRowError struct {
	id  int64
	err error
}

func (e *badRowError) Error() string { return fmt.Sprintf("engagement event %d: %v", e.id, e.err) }

func scanEvent(rows *sql.Rows) (*engagement.Event, error) {
	var (
		id, notifID                      sql.NullInt64
		hour, dow, schemaVer             sql.NullInt64
		sentAt, createdAt                sql.NullTime
		openedAt, clickedAt, convertedAt sql.NullTime
		opened, clicked, converted       sql.NullBool
		userID, channel, policy          sql.NullString
		age, income, industry, cohort    sql.NullString
		tOpen, tClick, tConvert          sql.NullFloat64
	)
	if err := rows.Scan(&id, &notifID, &userID, &channel, &sentAt, &hour, &dow,
		&age, &income, &industry, &cohort,
		&opened, &openedAt, &clicked, &clickedAt, &converted, &convertedAt,
		&tOpen, &tClick, &tConvert, &schemaVer, &policy, &createdAt,
	); err != nil {
		return nil, &badRowError{id: id.Int64, err: err}
	}
	if !notifID.Valid || !sentAt.Valid || !hour.Valid || !channel.Valid {
		return nil, &badRowError{id: id.Int64, err: errors.New("missing required column")}
	}
	ev := &engagement.Event{
		ID:             id.Int64,
		NotificationID: notifID.Int64,
		UserID:         userID.String,
		Channel:        notification.Channel(channel.String),
		SentAt:         sentAt.Time.UTC(),
		SendHour:       int(hour.Int64),
		SendDayOfWeek:  time.Weekday(dow.Int64),
		Demographics: engagement.DemographicSnapshot{
			AgeBracket:      age.String,
			IncomeBracket:   income.String,
			IndustryBracket: industry.String,
		},
		CohortName:       cohort,
		Opened:           opened.Bool,
		OpenedAt:         openedAt,
		Clicked:          clicked.Bool,
		ClickedAt:        clickedAt,
		Converted:        converted.Bool,
		ConvertedAt:      convertedAt,
		TimeToOpenMin:    tOpen,
		TimeToClickMin:   tClick,
		TimeToConvertMin: tConvert,
		SchemaVersion:    int(schemaVer.Int64),
		PolicyVersion:    engagement.PolicyVersion(policy.String),
		CreatedAt:        createdAt.Time.UTC(),
	}
	if err := ev.Valid(); err != nil {
		return nil, &badRowError{id: ev.ID, err: err}
	}
	return ev, nil
}
