package sqlite

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

type EngagementRepository struct {
	db *sql.DB
}

func NewEngagementRepository(db *sql.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

func (r *EngagementRepository) Create(ctx context.Context, e *engagement.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO engagement_events (notification_id, user_id, channel, sent_at, send_hour, send_day_of_week,
			age_bracket, income_bracket, industry_bracket, cohort_name,
			opened, opened_at, clicked, clicked_at, converted, converted_at,
			time_to_open_min, time_to_click_min, time_to_convert_min,
			schema_version, policy_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(notification_id) DO NOTHING`,
		e.NotificationID, e.UserID, e.Channel, toMillis(e.SentAt), e.SendHour, int(e.SendDayOfWeek),
		e.Demographics.AgeBracket, e.Demographics.IncomeBracket, e.Demographics.IndustryBracket, e.CohortName,
		boolInt(e.Opened), nullMillis(e.OpenedAt), boolInt(e.Clicked), nullMillis(e.ClickedAt),
		boolInt(e.Converted), nullMillis(e.ConvertedAt),
		e.TimeToOpenMin, e.TimeToClickMin, e.TimeToConvertMin,
		e.SchemaVersion, string(e.PolicyVersion), toMillis(e.CreatedAt),
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

func (r *EngagementRepository) GetByNotificationID(ctx context.Context, notificationID int64) (*engagement.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM engagement_events WHERE notification_id = ?`, notificationID)
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
	ev, err := scanEvent(rows)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *EngagementRepository) UpdateSignals(ctx context.Context, e *engagement.Event) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE engagement_events
		 SET opened = ?, opened_at = ?, clicked = ?, clicked_at = ?, converted = ?, converted_at = ?,
			 time_to_open_min = ?, time_to_click_min = ?, time_to_convert_min = ?
		 WHERE id = ?`,
		boolInt(e.Opened), nullMillis(e.OpenedAt), boolInt(e.Clicked), nullMillis(e.ClickedAt),
		boolInt(e.Converted), nullMillis(e.ConvertedAt),
		e.TimeToOpenMin, e.TimeToClickMin, e.TimeToConvertMin, e.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating engagement signals: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engagement.ErrEventNotFound
	}
	return nil
}

func (r *EngagementRepository) ListSentBetween(ctx context.Context, from, to time.Time, onBadRow func(id int64, err error)) ([]*engagement.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM engagement_events WHERE sent_at >= ? AND sent_at < ? ORDER BY sent_at, id`,
		toMillis(from), toMillis(to))
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

// badRowError marks a row that was read but cannot be used.
type badRowError struct {
	id  int64
	err error
}

func (e *badRowError) Error() string { return fmt.Sprintf("engagement event %d: %v", e.id, e.err) }

// scanEvent reads every column as nullable so a malformed row surfaces as a
// badRowError instead of aborting the scan.
func scanEvent(rows *sql.Rows) (*engagement.Event, error) {
	var (
		id, notifID, sentAt, createdAt   sql.NullInt64
		hour, dow, schemaVer             sql.NullInt64
		opened, clicked, converted       sql.NullInt64
		openedAt, clickedAt, convertedAt sql.NullInt64
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
		SentAt:         fromMillis(sentAt.Int64),
		SendHour:       int(hour.Int64),
		SendDayOfWeek:  time.Weekday(dow.Int64),
		Demographics: engagement.DemographicSnapshot{
			AgeBracket:      age.String,
			IncomeBracket:   income.String,
			IndustryBracket: industry.String,
		},
		CohortName:       cohort,
		Opened:           opened.Int64 != 0,
		OpenedAt:         nullTime(openedAt),
		Clicked:          clicked.Int64 != 0,
		ClickedAt:        nullTime(clickedAt),
		Converted:        converted.Int64 != 0,
		ConvertedAt:      nullTime(convertedAt),
		TimeToOpenMin:    tOpen,
		TimeToClickMin:   tClick,
		TimeToConvertMin: tConvert,
		SchemaVersion:    int(schemaVer.Int64),
		PolicyVersion:    engagement.PolicyVersion(policy.String),
		CreatedAt:        fromMillis(createdAt.Int64),
	}
	if err := ev.Valid(); err != nil {
		return nil, &badRowError{id: ev.ID, err: err}
	}
	return ev, nil
}
