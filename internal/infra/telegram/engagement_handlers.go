package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sendtime_notifier/internal/app"
	"sendtime_notifier/internal/domain/engagement"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// SignalRecorder stores engagement signals.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, notificationID int64, kind engagement.SignalKind, at time.Time, source string) (*engagement.Event, bool, error)
}

// parseEngagementCallback decodes "eng_<kind>_<notificationID>".
func parseEngagementCallback(data string) (engagement.SignalKind, int64, error) {
	// telebot prefixes data buttons with "\f<unique>|".
	if i := strings.LastIndex(data, "|"); i >= 0 {
		data = data[i+1:]
	}
	parts := strings.Split(strings.TrimSpace(data), "_")
	if len(parts) != 3 || parts[0] != "eng" {
		return "", 0, fmt.Errorf("invalid engagement callback data: %q", data)
	}
	kind, ok := engagement.ParseSignalKind(parts[1])
	if !ok {
		return "", 0, fmt.Errorf("unknown signal kind %q in callback", parts[1])
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid notification id %q in callback: %w", parts[2], err)
	}
	return kind, id, nil
}

// engagementReply records the signal and returns the toast text.
func engagementReply(ctx context.Context, recorder SignalRecorder, data string, at time.Time, log *logrus.Entry) string {
	kind, id, err := parseEngagementCallback(data)
	if err != nil {
		log.WithError(err).Warn("Unparsable engagement callback")
		return "Unknown action."
	}
	log = log.WithFields(logrus.Fields{"notification_id": id, "signal": kind})
	_, changed, err := recorder.RecordSignal(ctx, id, kind, at, app.SourceTelegram)
	switch {
	case errors.Is(err, engagement.ErrEventNotFound):
		return "This notification is no longer tracked."
	case err != nil:
		log.WithError(err).Error("Failed to record engagement callback")
		return "Something went wrong, please try again later."
	case !changed:
		return "Already noted."
	case kind == engagement.SignalConvert:
		return "Marked as done. Thanks!"
	default:
		return "Thanks!"
	}
}

// RegisterEngagementHandlers records inline-button presses on chat
// notifications as engagement signals.
func RegisterEngagementHandlers(ctx context.Context, b *telebot.Bot, recorder SignalRecorder, baseLogger *logrus.Entry) {
	log := baseLogger.WithField("handler_group", "engagement_callbacks")
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		reply := engagementReply(ctx, recorder, c.Callback().Data, time.Now(), log.WithField("sender_id", c.Sender().ID))
		return c.Respond(&telebot.CallbackResponse{Text: reply})
	})
}
