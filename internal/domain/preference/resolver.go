package preference

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sendtime_notifier/internal/domain/notification"
)

// Resolve maps a raw preference blob onto a complete Preferences value.
// It never fails: a nil, empty or unparsable blob yields Defaults(), and any
// missing or malformed sub-field falls back to its default independently.
//
// Accepted shapes, newest first:
//
//	{"email": {"enabled": true, "frequency": "daily", "quietHours": {"start": "22:00", "end": "08:00"}}, ...}
//	{"notifications": {...}} or {"channels": {...}} wrapping the above
//	{"channel_preferences": {"email": "enabled"}, "quiet_hours": [{"start": "22:00", "end": "07:00"}]}
//	{"emailNotifications": true, "smsNotifications": false, "quietHoursStart": "23:00", "quietHoursEnd": "07:00"}
func Resolve(raw []byte) Preferences {
	prefs := Defaults()
	if len(raw) == 0 {
		return prefs
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return prefs
	}
	return ResolveMap(doc)
}

// ResolveMap is Resolve for an already decoded document.
func ResolveMap(doc map[string]any) Preferences {
	prefs := Defaults()
	if doc == nil {
		return prefs
	}
	for _, wrapper := range []string{"notifications", "notificationPreferences", "notification_preferences", "channels"} {
		if inner, ok := doc[wrapper].(map[string]any); ok {
			doc = inner
			break
		}
	}

	// Top-level fallbacks shared by every channel (legacy flat shape).
	sharedQuiet, hasSharedQuiet := quietFromFlat(doc)
	sharedFreq, hasSharedFreq := parseFrequency(doc["frequency"])

	for _, ch := range notification.Channels {
		cp := defaultChannel()
		if hasSharedQuiet {
			cp.QuietHours = sharedQuiet
		}
		if hasSharedFreq {
			cp.Frequency = sharedFreq
		}

		if v, ok := lookupChannel(doc, ch); ok {
			switch node := v.(type) {
			case map[string]any:
				if enabled, ok := parseBool(first(node, "enabled", "isEnabled", "is_enabled", "on")); ok {
					cp.Enabled = enabled
				}
				if f, ok := parseFrequency(first(node, "frequency", "freq")); ok {
					cp.Frequency = f
				}
				if q, ok := parseQuietHours(first(node, "quietHours", "quiet_hours", "quiet")); ok {
					cp.QuietHours = q
				}
			default:
				// A bare value, e.g. {"email": true} or {"email": "enabled"}.
				if enabled, ok := parseBool(node); ok {
					cp.Enabled = enabled
				}
			}
		}

		if enabled, ok := parseBool(legacyFlag(doc, ch)); ok {
			cp.Enabled = enabled
		}
		if cpMap, ok := doc["channel_preferences"].(map[string]any); ok {
			if v, ok := lookupChannel(cpMap, ch); ok {
				if enabled, ok := parseBool(v); ok {
					cp.Enabled = enabled
				}
			}
		}
		prefs.Channels[ch] = cp
	}
	return prefs
}

func channelKeys(ch notification.Channel) []string {
	switch ch {
	case notification.ChannelChat:
		return []string{"chat", "whatsapp", "telegram"}
	case notification.ChannelSMS:
		return []string{"sms", "SMS"}
	default:
		return []string{string(ch)}
	}
}

func lookupChannel(doc map[string]any, ch notification.Channel) (any, bool) {
	for _, k := range channelKeys(ch) {
		if v, ok := doc[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func legacyFlag(doc map[string]any, ch notification.Channel) any {
	for _, k := range channelKeys(ch) {
		if v, ok := doc[k+"Notifications"]; ok {
			return v
		}
		if v, ok := doc[k+"_notifications"]; ok {
			return v
		}
		if v, ok := doc[k+"Enabled"]; ok {
			return v
		}
	}
	return nil
}

func first(node map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := node[k]; ok {
			return v
		}
	}
	return nil
}

func quietFromFlat(doc map[string]any) (QuietHours, bool) {
	if q, ok := parseQuietHours(first(doc, "quietHours", "quiet_hours")); ok {
		return q, true
	}
	start, okStart := parseClock(first(doc, "quietHoursStart", "quiet_hours_start"))
	end, okEnd := parseClock(first(doc, "quietHoursEnd", "quiet_hours_end"))
	if okStart && okEnd {
		return QuietHours{Start: start, End: end}, true
	}
	return QuietHours{}, false
}

func parseBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "on", "enabled", "1":
			return true, true
		case "false", "no", "off", "disabled", "0":
			return false, true
		}
	}
	return false, false
}

func parseFrequency(v any) (Frequency, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case FrequencyInstant, "immediate", "realtime":
		return FrequencyInstant, true
	case FrequencyDaily:
		return FrequencyDaily, true
	case FrequencyWeekly:
		return FrequencyWeekly, true
	}
	return "", false
}

// parseQuietHours accepts {"start","end"}, a one-element list of such objects,
// or a "HH:MM-HH:MM" string. Both bounds must parse.
func parseQuietHours(v any) (QuietHours, bool) {
	switch t := v.(type) {
	case map[string]any:
		start, okStart := parseClock(first(t, "start", "from"))
		end, okEnd := parseClock(first(t, "end", "to"))
		if okStart && okEnd {
			return QuietHours{Start: start, End: end}, true
		}
	case []any:
		if len(t) > 0 {
			return parseQuietHours(t[0])
		}
	case string:
		parts := strings.SplitN(t, "-", 2)
		if len(parts) == 2 {
			start, okStart := parseClock(parts[0])
			end, okEnd := parseClock(parts[1])
			if okStart && okEnd {
				return QuietHours{Start: start, End: end}, true
			}
		}
	}
	return QuietHours{}, false
}

// parseClock normalizes "9:00", "09:00" or "09:00:00" to "09:00".
func parseClock(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	h, m, err := ParseHHMM(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

// ParseHHMM parses a 24h clock string. Seconds, if present, are ignored.
func ParseHHMM(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
