package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/profile"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*profile.Profile, error) {
	var (
		p       profile.Profile
		prefs   sql.NullString
		updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, first_name, email, phone, chat_id, timezone,
			age_bracket, income_bracket, industry_bracket, preferences, updated_at
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.FirstName, &p.Email, &p.Phone, &p.ChatID, &p.Timezone,
		&p.AgeBracket, &p.IncomeBracket, &p.IndustryBracket, &prefs, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, profile.ErrProfileNotFound
		}
		return nil, fmt.Errorf("error getting profile by user ID: %w", err)
	}
	if prefs.Valid {
		p.RawPreferences = []byte(prefs.String)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, p *profile.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	var prefs sql.NullString
	if len(p.RawPreferences) > 0 {
		prefs = sql.NullString{String: string(p.RawPreferences), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, first_name, email, phone, chat_id, timezone,
			age_bracket, income_bracket, industry_bracket, preferences, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			first_name = excluded.first_name, email = excluded.email, phone = excluded.phone,
			chat_id = excluded.chat_id, timezone = excluded.timezone,
			age_bracket = excluded.age_bracket, income_bracket = excluded.income_bracket,
			industry_bracket = excluded.industry_bracket, preferences = excluded.preferences,
			updated_at = excluded.updated_at`,
		p.UserID, p.FirstName, p.Email, p.Phone, p.ChatID, p.Timezone,
		p.AgeBracket, p.IncomeBracket, p.IndustryBracket, prefs, toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error upserting profile: %w", err)
	}
	return nil
}
