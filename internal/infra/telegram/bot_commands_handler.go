// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	b *telebot.Bot,
	op Operator, // For the admin check
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")
		return c.Send(startText(op.IsAdmin(senderID), c.Sender().FirstName, c.Chat().ID))
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")
		if op.IsAdmin(senderID) {
			return c.Send(operatorHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}
		return c.Send("I deliver your notifications here. Use the buttons under a message to open it or mark it as done.")
	})
}

func startText(isAdmin bool, firstName string, chatID int64) string {
	if isAdmin {
		return fmt.Sprintf("Hello, operator %s! Use /help for the list of commands.", firstName)
	}
	// Users link this chat to their profile with the id below.
	return fmt.Sprintf("Hello, %s! Your chat ID is %d. Add it to your profile to receive notifications here.", firstName, chatID)
}

func operatorHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Operator commands:\n\n")
	helpText.WriteString("`/report [YYYY-MM-DD]`\n - Send-time analytics and the recommendation for a day (default: yesterday).\n\n")
	helpText.WriteString("`/stats <userID> [days]`\n - Queue counts for a user by status and channel.\n\n")
	helpText.WriteString("`/cancel <entryID>`\n - Cancel a pending notification.\n\n")
	helpText.WriteString("`/optimize <on|off> [YYYY-MM-DD]`\n - Turn personalized send times on or off.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
