// internal/domain/notification/status.go
package notification

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
)

// Channels lists every supported channel in a stable order.
var Channels = []Channel{ChannelEmail, ChannelChat, ChannelSMS}

// ParseChannel normalizes a channel name. "whatsapp" and "telegram" are
// accepted as legacy spellings of the chat channel.
func ParseChannel(raw string) (Channel, bool) {
	switch raw {
	case "email", "EMAIL", "Email":
		return ChannelEmail, true
	case "chat", "CHAT", "whatsapp", "telegram":
		return ChannelChat, true
	case "sms", "SMS":
		return ChannelSMS, true
	}
	return "", false
}

// Priority ranges from 1 (highest) to 10 (lowest).
const (
	PriorityHighest = 1
	PriorityDefault = 5
	PriorityLowest  = 10
)
