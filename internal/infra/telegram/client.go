// internal/infra/telegram/client.go
package telegram

import (
	domaintg "sendtime_notifier/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements domaintg.Client on top of gopkg.in/telebot.v3.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// Send delivers msg to its chat, attaching the inline keyboard if any.
func (tba *TelebotAdapter) Send(msg domaintg.Message) error {
	_, err := tba.bot.Send(telebot.ChatID(msg.ChatID), msg.Text, sendOptions(msg))
	return err
}

func sendOptions(msg domaintg.Message) *telebot.SendOptions {
	opts := &telebot.SendOptions{}
	if msg.Markdown {
		opts.ParseMode = telebot.ModeMarkdown
	}
	if len(msg.Buttons) > 0 {
		markup := &telebot.ReplyMarkup{}
		row := make([]telebot.Btn, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			row = append(row, markup.Data(b.Text, b.Unique, b.Data))
		}
		markup.Inline(markup.Row(row...))
		opts.ReplyMarkup = markup
	}
	return opts
}
