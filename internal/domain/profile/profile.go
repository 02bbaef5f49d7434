package profile

import (
	"database/sql"
	"errors"
	"time"
)

var ErrProfileNotFound = errors.New("user profile not found")

// Profile is the slice of the user record owned by the profile collaborator
// that the notification pipeline reads. It is never written by this service.
type Profile struct {
	UserID    string
	FirstName string
	Email     sql.NullString
	Phone     sql.NullString
	ChatID    sql.NullInt64 // Telegram chat for the chat channel
	Timezone  string        // IANA name, empty means UTC

	AgeBracket      string
	IncomeBracket   string
	IndustryBracket string

	// RawPreferences is the notification-preference blob as stored upstream.
	// Its shape drifts over time; preference.Resolve normalizes it.
	RawPreferences []byte

	UpdatedAt time.Time
}

// Location resolves the profile timezone, falling back to UTC.
func (p *Profile) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
