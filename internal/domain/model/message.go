package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MessageRecord is one archived Telegram message, incoming or sent by the bot.
type MessageRecord struct {
	ID            int64
	MessageID     int
	ChatID        int64
	ChatType      string
	ChatTitle     string
	ChatUsername  string
	FromID        int64
	FromIsBot     bool
	FromFirstName string
	FromLastName  string
	FromUsername  string
	Text          string
	Date          time.Time
	Raw           json.RawMessage
}

func (m *MessageRecord) HasText() bool {
	return m != nil && strings.TrimSpace(m.Text) != ""
}

// AuthorName prefers the full name, then @username, then the numeric id.
func (m *MessageRecord) AuthorName() string {
	if m == nil {
		return "unknown user"
	}
	if name := joinNonEmpty(m.FromFirstName, m.FromLastName); name != "" {
		return name
	}
	if u := strings.TrimSpace(m.FromUsername); u != "" {
		return "@" + u
	}
	if m.FromID != 0 {
		return "userId=" + itoa(m.FromID)
	}
	return "unknown user"
}

// ChatLabel renders "Title @username" or falls back to the chat id.
func (m *MessageRecord) ChatLabel() string {
	if m == nil {
		return "chatId=unknown"
	}
	title := strings.TrimSpace(m.ChatTitle)
	username := strings.TrimSpace(m.ChatUsername)
	if username != "" {
		username = "@" + username
	}
	if label := joinNonEmpty(title, username); label != "" {
		return label
	}
	return "chatId=" + itoa(m.ChatID)
}

func (m *MessageRecord) IsGroup() bool {
	return m != nil && (m.ChatType == "group" || m.ChatType == "supergroup")
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
