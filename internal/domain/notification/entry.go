// internal/domain/notification/entry.go
package notification

import (
	"database/sql"
	"time"
)

// MaxRetryCount is the largest retry_count a queue entry can carry.
const MaxRetryCount = 3

// QueueEntry is one attempted notification.
// Corresponds to the 'notification_queue' table.
type QueueEntry struct {
	ID            int64
	UserID        string
	Channel       Channel
	Type          string // free-form category, e.g. "digest", "reminder"
	Status        Status
	Priority      int
	Subject       string
	Body          string
	Metadata      map[string]string
	ScheduledFor  time.Time
	SentAt        sql.NullTime
	FailedAt      sql.NullTime
	FailureReason sql.NullString
	RetryCount    int
	CreatedAt     time.Time

	// Lease stamped by ClaimDue; empty when the entry is not claimed.
	ClaimToken   string
	ClaimedUntil sql.NullTime
}

// Leased reports whether the entry is held by a dispatcher at instant now.
func (e *QueueEntry) Leased(now time.Time) bool {
	return e.ClaimedUntil.Valid && e.ClaimedUntil.Time.After(now)
}

// Normalize validates required fields and fills defaults before insertion.
// A scheduledFor in the past (or zero) becomes now.
func (e *QueueEntry) Normalize(now time.Time) error {
	if e.UserID == "" {
		return invalid("user_id is required")
	}
	if e.Channel == "" {
		return invalid("channel is required")
	}
	if _, ok := ParseChannel(string(e.Channel)); !ok {
		return invalid("unsupported channel " + string(e.Channel))
	}
	if e.Body == "" {
		return invalid("body is required")
	}
	if e.Priority == 0 {
		e.Priority = PriorityDefault
	}
	if e.Priority < PriorityHighest || e.Priority > PriorityLowest {
		return invalid("priority must be between 1 and 10")
	}
	if e.ScheduledFor.IsZero() || e.ScheduledFor.Before(now) {
		e.ScheduledFor = now
	}
	e.ScheduledFor = e.ScheduledFor.UTC()
	e.Status = StatusPending
	e.RetryCount = 0
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	return nil
}

// Stats summarizes a user's queue entries over a window.
type Stats struct {
	UserID     string
	WindowDays int
	Total      int
	ByStatus   map[Status]int
	ByChannel  map[Channel]int
	// ByChannelStatus is keyed by channel, then status.
	ByChannelStatus map[Channel]map[Status]int
}

// NewStats returns a Stats with every status and channel present at zero.
func NewStats(userID string, windowDays int) *Stats {
	st := &Stats{
		UserID:          userID,
		WindowDays:      windowDays,
		ByStatus:        map[Status]int{},
		ByChannel:       map[Channel]int{},
		ByChannelStatus: map[Channel]map[Status]int{},
	}
	for _, s := range []Status{StatusPending, StatusSent, StatusFailed, StatusCancelled} {
		st.ByStatus[s] = 0
	}
	for _, c := range Channels {
		st.ByChannel[c] = 0
		st.ByChannelStatus[c] = map[Status]int{}
	}
	return st
}

// Add records count entries with the given channel and status.
func (st *Stats) Add(channel Channel, status Status, count int) {
	st.Total += count
	st.ByStatus[status] += count
	st.ByChannel[channel] += count
	if st.ByChannelStatus[channel] == nil {
		st.ByChannelStatus[channel] = map[Status]int{}
	}
	st.ByChannelStatus[channel][status] += count
}
