// Package telegram describes the chat transport the chat channel sends through.
package telegram

// Button is an inline callback button shown under a message. Data comes
// back verbatim in the callback when the user presses it.
type Button struct {
	Unique string
	Text   string
	Data   string
}

// Message is one outgoing chat message. Buttons are laid out in a single row.
type Message struct {
	ChatID   int64
	Text     string
	Markdown bool
	Buttons  []Button
}

// Client delivers chat messages. Implementations hide the bot library.
type Client interface {
	Send(msg Message) error
}
