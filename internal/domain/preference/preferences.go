// Package preference turns the user's raw notification-preference record into
// a complete typed structure and answers quiet-hours questions about it.
package preference

import "sendtime_notifier/internal/domain/notification"

// Frequency is how often a channel may deliver.
type Frequency string

const (
	FrequencyInstant Frequency = "instant"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
)

// Defaults applied to any missing or malformed field.
const (
	DefaultEnabled         = false
	DefaultFrequency       = FrequencyWeekly
	DefaultQuietHoursStart = "22:00"
	DefaultQuietHoursEnd   = "08:00"
)

// QuietHours is a do-not-disturb window in local HH:MM clock strings.
// Start later than End means the window wraps past midnight.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DefaultQuietHours is 22:00-08:00.
func DefaultQuietHours() QuietHours {
	return QuietHours{Start: DefaultQuietHoursStart, End: DefaultQuietHoursEnd}
}

// ChannelPreferences are the settings for one channel.
type ChannelPreferences struct {
	Enabled    bool       `json:"enabled"`
	Frequency  Frequency  `json:"frequency"`
	QuietHours QuietHours `json:"quietHours"`
}

// Preferences holds one entry per supported channel, always fully populated.
type Preferences struct {
	Channels map[notification.Channel]ChannelPreferences `json:"channels"`
}

// For returns the settings for ch. Unknown channels get the defaults.
func (p Preferences) For(ch notification.Channel) ChannelPreferences {
	if cp, ok := p.Channels[ch]; ok {
		return cp
	}
	return defaultChannel()
}

func defaultChannel() ChannelPreferences {
	return ChannelPreferences{
		Enabled:    DefaultEnabled,
		Frequency:  DefaultFrequency,
		QuietHours: DefaultQuietHours(),
	}
}

// Defaults returns preferences with every channel set to the defaults.
func Defaults() Preferences {
	p := Preferences{Channels: make(map[notification.Channel]ChannelPreferences, len(notification.Channels))}
	for _, ch := range notification.Channels {
		p.Channels[ch] = defaultChannel()
	}
	return p
}
