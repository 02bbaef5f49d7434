package preference

import (
	"testing"

	"sendtime_notifier/internal/domain/notification"
)

func TestResolveDefaultsOnEmptyOrGarbage(t *testing.T) {
	t.Parallel()
	for _, raw := range [][]byte{nil, []byte(""), []byte("not json"), []byte("[1,2]"), []byte("null")} {
		got := Resolve(raw)
		for _, ch := range notification.Channels {
			cp := got.For(ch)
			if cp.Enabled || cp.Frequency != FrequencyWeekly || cp.QuietHours != DefaultQuietHours() {
				t.Fatalf("Resolve(%q)[%s] = %+v, want defaults", raw, ch, cp)
			}
		}
	}
}

func TestResolveShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		channel notification.Channel
		want    ChannelPreferences
	}{
		{
			name:    "current shape",
			raw:     `{"email":{"enabled":true,"frequency":"daily","quietHours":{"start":"23:00","end":"07:30"}}}`,
			channel: notification.ChannelEmail,
			want:    ChannelPreferences{Enabled: true, Frequency: FrequencyDaily, QuietHours: QuietHours{"23:00", "07:30"}},
		},
		{
			name:    "wrapped and partial",
			raw:     `{"notifications":{"sms":{"enabled":"yes"}}}`,
			channel: notification.ChannelSMS,
			want:    ChannelPreferences{Enabled: true, Frequency: FrequencyWeekly, QuietHours: DefaultQuietHours()},
		},
		{
			name:    "whatsapp alias for chat",
			raw:     `{"whatsapp":{"enabled":true,"quiet_hours":"21:00-6:00"}}`,
			channel: notification.ChannelChat,
			want:    ChannelPreferences{Enabled: true, Frequency: FrequencyWeekly, QuietHours: QuietHours{"21:00", "06:00"}},
		},
		{
			name:    "legacy flat flags",
			raw:     `{"emailNotifications":true,"quietHoursStart":"22:30","quietHoursEnd":"06:00","frequency":"instant"}`,
			channel: notification.ChannelEmail,
			want:    ChannelPreferences{Enabled: true, Frequency: FrequencyInstant, QuietHours: QuietHours{"22:30", "06:00"}},
		},
		{
			name:    "channel_preferences map",
			raw:     `{"channel_preferences":{"sms":"enabled"},"quiet_hours":[{"start":"22:00","end":"07:00"}]}`,
			channel: notification.ChannelSMS,
			want:    ChannelPreferences{Enabled: true, Frequency: FrequencyWeekly, QuietHours: QuietHours{"22:00", "07:00"}},
		},
		{
			name:    "malformed sub-fields default independently",
			raw:     `{"email":{"enabled":"maybe","frequency":42,"quietHours":{"start":"25:00","end":"08:00"}}}`,
			channel: notification.ChannelEmail,
			want:    defaultChannel(),
		},
		{
			name:    "bare boolean",
			raw:     `{"chat":true}`,
			channel: notification.ChannelChat,
			want:    ChannelPreferences{Enabled: true, Frequency: FrequencyWeekly, QuietHours: DefaultQuietHours()},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Resolve([]byte(tt.raw)).For(tt.channel)
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveAlwaysPopulatesEveryChannel(t *testing.T) {
	t.Parallel()
	got := Resolve([]byte(`{"email":{"enabled":true}}`))
	if len(got.Channels) != len(notification.Channels) {
		t.Fatalf("expected %d channels, got %d", len(notification.Channels), len(got.Channels))
	}
	if got.For(notification.ChannelSMS).Enabled {
		t.Fatal("sms should default to disabled")
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := ParseHHMM("23:15")
	if err != nil || h != 23 || m != 15 {
		t.Fatalf("ParseHHMM(23:15) = %d:%d, %v", h, m, err)
	}
	for _, bad := range []string{"24:00", "12:60", "12", "ab:cd", "12:5"} {
		if _, _, err := ParseHHMM(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
