package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"
	domaintg "sendtime_notifier/internal/domain/telegram"
)

// ErrNoChat means the recipient has no linked Telegram chat.
var ErrNoChat = errors.New("recipient has no telegram chat")

// ChatSender delivers the chat channel through the bot. Each message
// carries buttons whose callbacks are recorded as engagement signals.
type ChatSender struct {
	client domaintg.Client
}

func NewChatSender(client domaintg.Client) *ChatSender {
	return &ChatSender{client: client}
}

func (s *ChatSender) Channel() notification.Channel { return notification.ChannelChat }

func (s *ChatSender) Send(ctx context.Context, e *notification.QueueEntry, to notification.Recipient) error {
	if to.ChatID == 0 {
		return ErrNoChat
	}
	text := escapeMarkdown(e.Body)
	if e.Subject != "" {
		text = "*" + escapeMarkdown(e.Subject) + "*\n\n" + escapeMarkdown(e.Body)
	}
	msg := domaintg.Message{
		ChatID:   to.ChatID,
		Text:     text,
		Markdown: true,
		Buttons:  engagementButtons(e.ID),
	}

	// telebot has no context support; the bot's HTTP client bounds the call.
	done := make(chan error, 1)
	go func() { done <- s.client.Send(msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func engagementButtons(notificationID int64) []domaintg.Button {
	return []domaintg.Button{
		{Unique: "eng_open", Text: "Open", Data: callbackData(engagement.SignalClick, notificationID)},
		{Unique: "eng_done", Text: "Done", Data: callbackData(engagement.SignalConvert, notificationID)},
	}
}

func callbackData(kind engagement.SignalKind, notificationID int64) string {
	return fmt.Sprintf("eng_%s_%d", kind, notificationID)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
