package database

import (
	"context"
	"database/sql"
	"fmt"

	"sendtime_notifier/internal/domain/profile"
)

type PostgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) GetByUserID(ctx context.Context, userID string) (*profile.Profile, error) {
	query := `SELECT user_id, first_name, email, phone, chat_id, timezone,
                age_bracket, income_bracket, industry_bracket, preferences, updated_at
               FROM user_profiles WHERE user_id = $1`
	p := &profile.Profile{}
	var prefs []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.FirstName, &p.Email, &p.Phone, &p.ChatID, &p.Timezone,
		&p.AgeBracket, &p.IncomeBracket, &p.IndustryBracket, &prefs, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, profile.ErrProfileNotFound
		}
		return nil, fmt.Errorf("error getting profile by user ID: %w", err)
	}
	p.RawPreferences = prefs
	return p, nil
}

func (r *PostgresProfileRepository) Upsert(ctx context.Context, p *profile.Profile) error {
	var prefs any
	if len(p.RawPreferences) > 0 {
		prefs = string(p.RawPreferences)
	}
	query := `INSERT INTO user_profiles (user_id, first_name, email, phone, chat_id, timezone,
                age_bracket, income_bracket, industry_bracket, preferences, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
               ON CONFLICT (user_id) DO UPDATE SET
                first_name = EXCLUDED.first_name, email = EXCLUDED.email, phone = EXCLUDED.phone,
                chat_id = EXCLUDED.chat_id, timezone = EXCLUDED.timezone,
                age_bracket = EXCLUDED.age_bracket, income_bracket = EXCLUDED.income_bracket,
                industry_bracket = EXCLUDED.industry_bracket, preferences = EXCLUDED.preferences,
                updated_at = NOW()
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		p.UserID, p.FirstName, p.Email, p.Phone, p.ChatID, p.Timezone,
		p.AgeBracket, p.IncomeBracket, p.IndustryBracket, prefs,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting profile: %w", err)
	}
	return nil
}
