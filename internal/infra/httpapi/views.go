package httpapi

import (
	"time"

	"sendtime_notifier/internal/domain/notification"
)

type entryView struct {
	ID            int64             `json:"id"`
	UserID        string            `json:"userId"`
	Channel       string            `json:"channel"`
	Type          string            `json:"type,omitempty"`
	Status        string            `json:"status"`
	Priority      int               `json:"priority"`
	Subject       string            `json:"subject,omitempty"`
	Body          string            `json:"body"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ScheduledFor  time.Time         `json:"scheduledFor"`
	SentAt        *time.Time        `json:"sentAt,omitempty"`
	FailedAt      *time.Time        `json:"failedAt,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	RetryCount    int               `json:"retryCount"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func toEntryView(e *notification.QueueEntry) entryView {
	v := entryView{
		ID:            e.ID,
		UserID:        e.UserID,
		Channel:       string(e.Channel),
		Type:          e.Type,
		Status:        string(e.Status),
		Priority:      e.Priority,
		Subject:       e.Subject,
		Body:          e.Body,
		Metadata:      e.Metadata,
		ScheduledFor:  e.ScheduledFor,
		FailureReason: e.FailureReason.String,
		RetryCount:    e.RetryCount,
		CreatedAt:     e.CreatedAt,
	}
	if e.SentAt.Valid {
		v.SentAt = &e.SentAt.Time
	}
	if e.FailedAt.Valid {
		v.FailedAt = &e.FailedAt.Time
	}
	return v
}

type statsView struct {
	UserID     string                    `json:"userId"`
	WindowDays int                       `json:"windowDays"`
	Total      int                       `json:"total"`
	ByStatus   map[string]int            `json:"byStatus"`
	ByChannel  map[string]map[string]int `json:"byChannel"`
}

func toStatsView(st *notification.Stats) statsView {
	v := statsView{
		UserID:     st.UserID,
		WindowDays: st.WindowDays,
		Total:      st.Total,
		ByStatus:   map[string]int{},
		ByChannel:  map[string]map[string]int{},
	}
	for s, n := range st.ByStatus {
		v.ByStatus[string(s)] = n
	}
	for ch, byStatus := range st.ByChannelStatus {
		m := map[string]int{}
		for s, n := range byStatus {
			m[string(s)] = n
		}
		v.ByChannel[string(ch)] = m
	}
	return v
}
