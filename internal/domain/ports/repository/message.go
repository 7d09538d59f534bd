package repository

import (
	"context"
	"time"

	"veritheo-bot/internal/domain/model"
)

// MessageRepository is the message archive.
type MessageRepository interface {
	Record(ctx context.Context, rec *model.MessageRecord) error
	// QueryRecentBotMessages pages through bot-authored messages of a chat,
	// most recent first.
	QueryRecentBotMessages(ctx context.Context, chatID int64, limit, offset int) ([]*model.MessageRecord, error)
	FindByMessageID(ctx context.Context, chatID int64, messageID int) (*model.MessageRecord, error)
	// RecentChatMessages returns the latest text messages of a chat in
	// chronological order.
	RecentChatMessages(ctx context.Context, chatID int64, limit int) ([]*model.MessageRecord, error)
	// UserMessagesSince returns the longest human messages of a user newer than
	// since, re-sorted chronologically.
	UserMessagesSince(ctx context.Context, chatID, userID int64, since time.Time, minLength, limit int) ([]*model.MessageRecord, error)
}
