package telegram

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/logging"
)

var _ adapter.ChatClient = (*NoopClient)(nil)

// NoopClient logs messages instead of sending them. Used for dry runs
// without a reachable Bot API. Outside dev the logged text is redacted.
type NoopClient struct {
	nextID atomic.Int64
	dev    bool
	log    *zerolog.Logger
}

func NewNoopClient(logger *zerolog.Logger, dev bool) *NoopClient {
	l := logger.With().Str("component", "NoopTelegram").Logger()
	return &NoopClient{dev: dev, log: &l}
}

func (n *NoopClient) SendMessage(ctx context.Context, msg adapter.OutgoingMessage) (*model.MessageRecord, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	id := int(n.nextID.Add(1))
	n.log.Info().
		Int64("chat_id", msg.ChatID).
		Int("reply_to", msg.ReplyToMessageID).
		Str("parse_mode", msg.ParseMode).
		Str("text", logging.Redact(msg.Text, n.dev)).
		Msg("noop send")
	return &model.MessageRecord{
		MessageID: id,
		ChatID:    msg.ChatID,
		FromIsBot: true,
		Text:      msg.Text,
		Date:      time.Now().UTC(),
	}, nil
}

func (n *NoopClient) SendTyping(_ context.Context, chatID int64) error {
	n.log.Debug().Int64("chat_id", chatID).Msg("noop typing")
	return nil
}
