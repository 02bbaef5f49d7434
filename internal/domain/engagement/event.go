// Package engagement models what happened to a notification after it was sent.
package engagement

import (
	"database/sql"
	"errors"
	"time"

	"sendtime_notifier/internal/domain/notification"
)

var ErrEventNotFound = errors.New("engagement event not found")

// CurrentSchemaVersion is stamped on every new event row.
const CurrentSchemaVersion = 2

// SignalKind is a user reaction to a sent notification.
type SignalKind string

const (
	SignalOpen    SignalKind = "open"
	SignalClick   SignalKind = "click"
	SignalConvert SignalKind = "convert"
)

// ParseSignalKind accepts the canonical names plus past-tense variants.
func ParseSignalKind(raw string) (SignalKind, bool) {
	switch raw {
	case "open", "opened":
		return SignalOpen, true
	case "click", "clicked":
		return SignalClick, true
	case "convert", "converted", "conversion":
		return SignalConvert, true
	}
	return "", false
}

// DemographicSnapshot is captured at send time and never re-derived.
type DemographicSnapshot struct {
	AgeBracket      string
	IncomeBracket   string
	IndustryBracket string
}

// Event is the engagement record for one sent notification.
// Snapshot fields are immutable; only the opened/clicked/converted pairs and
// their minute deltas are filled in as the user reacts.
type Event struct {
	ID             int64
	NotificationID int64
	UserID         string
	Channel        notification.Channel
	SentAt         time.Time
	SendHour       int          // 0-23 in the recipient's local zone
	SendDayOfWeek  time.Weekday // in the recipient's local zone
	Demographics   DemographicSnapshot
	CohortName     sql.NullString

	Opened           bool
	OpenedAt         sql.NullTime
	Clicked          bool
	ClickedAt        sql.NullTime
	Converted        bool
	ConvertedAt      sql.NullTime
	TimeToOpenMin    sql.NullFloat64
	TimeToClickMin   sql.NullFloat64
	TimeToConvertMin sql.NullFloat64

	SchemaVersion int
	PolicyVersion PolicyVersion
	CreatedAt     time.Time
}

// NewSendEvent builds the event row for a notification sent at sentAt to a
// recipient living in loc.
func NewSendEvent(entry *notification.QueueEntry, sentAt time.Time, loc *time.Location, demo DemographicSnapshot, cohortName string) *Event {
	if loc == nil {
		loc = time.UTC
	}
	local := sentAt.In(loc)
	ev := &Event{
		NotificationID: entry.ID,
		UserID:         entry.UserID,
		Channel:        entry.Channel,
		SentAt:         sentAt.UTC(),
		SendHour:       local.Hour(),
		SendDayOfWeek:  local.Weekday(),
		Demographics:   demo,
		SchemaVersion:  CurrentSchemaVersion,
		PolicyVersion:  CurrentPolicy,
	}
	if cohortName != "" {
		ev.CohortName = sql.NullString{String: cohortName, Valid: true}
	}
	return ev
}

// Apply stamps a signal onto the event. The first occurrence of each signal
// wins; later duplicates are ignored. A click or conversion without an
// earlier open also marks the event opened. Returns whether anything changed.
func (e *Event) Apply(kind SignalKind, at time.Time) bool {
	at = at.UTC()
	if at.Before(e.SentAt) {
		at = e.SentAt
	}
	changed := false
	markOpen := func() {
		if !e.Opened {
			e.Opened = true
			e.OpenedAt = sql.NullTime{Time: at, Valid: true}
			e.TimeToOpenMin = minutesSince(e.SentAt, at)
			changed = true
		}
	}
	switch kind {
	case SignalOpen:
		markOpen()
	case SignalClick:
		markOpen()
		if !e.Clicked {
			e.Clicked = true
			e.ClickedAt = sql.NullTime{Time: at, Valid: true}
			e.TimeToClickMin = minutesSince(e.SentAt, at)
			changed = true
		}
	case SignalConvert:
		markOpen()
		if !e.Converted {
			e.Converted = true
			e.ConvertedAt = sql.NullTime{Time: at, Valid: true}
			e.TimeToConvertMin = minutesSince(e.SentAt, at)
			changed = true
		}
	}
	return changed
}

func minutesSince(from, to time.Time) sql.NullFloat64 {
	return sql.NullFloat64{Float64: to.Sub(from).Minutes(), Valid: true}
}

// Valid reports whether the row is usable by the aggregator.
func (e *Event) Valid() error {
	switch {
	case e.SendHour < 0 || e.SendHour > 23:
		return errors.New("send hour out of range")
	case e.SentAt.IsZero():
		return errors.New("missing sent_at")
	case e.Clicked && !e.Opened:
		return errors.New("clicked without opened")
	case e.TimeToClickMin.Valid && e.TimeToClickMin.Float64 < 0:
		return errors.New("negative time to click")
	}
	return nil
}
