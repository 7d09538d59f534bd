package telegram

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/metrics"
)

// API is the part of *tgbotapi.BotAPI the adapter uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewAPI connects to the Bot API and verifies the token with getMe.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return bot, nil
}

var _ adapter.ChatClient = (*Client)(nil)

// Client sends messages and chat actions.
type Client struct {
	api API
	log *zerolog.Logger
}

func NewClient(api API, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "TelegramClient").Logger()
	return &Client{api: api, log: &l}
}

func (c *Client) SendMessage(ctx context.Context, msg adapter.OutgoingMessage) (*model.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ParseMode = msg.ParseMode
	if msg.ReplyToMessageID != 0 {
		cfg.ReplyToMessageID = msg.ReplyToMessageID
		cfg.AllowSendingWithoutReply = true
	}
	sent, err := c.api.Send(cfg)
	if err != nil {
		metrics.IncTelegramSend(msg.ParseMode, "error")
		return nil, err
	}
	metrics.IncTelegramSend(msg.ParseMode, "ok")
	return ToRecord(&sent), nil
}

func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// ToRecord converts a Telegram message into its archived form. Captions
// count as text. Returns nil for a nil message.
func ToRecord(m *tgbotapi.Message) *model.MessageRecord {
	if m == nil {
		return nil
	}
	rec := &model.MessageRecord{
		MessageID: m.MessageID,
		Text:      m.Text,
		Date:      m.Time(),
	}
	if rec.Text == "" {
		rec.Text = m.Caption
	}
	if m.Chat != nil {
		rec.ChatID = m.Chat.ID
		rec.ChatType = m.Chat.Type
		rec.ChatTitle = m.Chat.Title
		rec.ChatUsername = m.Chat.UserName
	}
	if m.From != nil {
		rec.FromID = m.From.ID
		rec.FromIsBot = m.From.IsBot
		rec.FromFirstName = m.From.FirstName
		rec.FromLastName = m.From.LastName
		rec.FromUsername = m.From.UserName
	}
	if raw, err := json.Marshal(m); err == nil {
		rec.Raw = raw
	}
	return rec
}
