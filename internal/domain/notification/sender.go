package notification

import "context"

// Recipient carries the addresses a sender may need.
type Recipient struct {
	UserID string
	Name   string
	Email  string
	Phone  string
	ChatID int64
}

// Sender delivers a queue entry over one channel. Implementations must
// honour ctx cancellation; a deadline exceeded is treated as a failed send.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, e *QueueEntry, to Recipient) error
}
