// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"

	"veritheo-bot/internal/domain/model"
)

const (
	ParseModeNone     = ""
	ParseModeMarkdown = "Markdown"
)

type OutgoingMessage struct {
	ChatID           int64
	Text             string
	ReplyToMessageID int
	ParseMode        string
}

// ChatClient is the messaging platform as seen by the queue and the facade.
type ChatClient interface {
	// SendMessage returns the message as delivered so it can be archived.
	SendMessage(ctx context.Context, msg OutgoingMessage) (*model.MessageRecord, error)
	SendTyping(ctx context.Context, chatID int64) error
}
