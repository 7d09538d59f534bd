package opslog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
)

var _ adapter.ErrorNotifier = (*ChannelLogger)(nil)

// Sender is the part of *tgbotapi.BotAPI the channel logger needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatTarget is a normalized destination: either a numeric chat id or a
// public @username.
type ChatTarget struct {
	ID       int64
	Username string
}

func (t ChatTarget) String() string {
	if t.Username != "" {
		return t.Username
	}
	return strconv.FormatInt(t.ID, 10)
}

// NormalizeChatID accepts "123", "-100123", "-42", "@name" or "name".
// Bare positive ids are channel ids and get the -100 prefix.
func NormalizeChatID(raw string) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, errors.New("opslog: empty channel id")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return ChatTarget{ID: n}, nil
		}
		prefixed, err := strconv.ParseInt("-100"+s, 10, 64)
		if err != nil {
			return ChatTarget{}, fmt.Errorf("opslog: channel id %q: %w", raw, err)
		}
		return ChatTarget{ID: prefixed}, nil
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return ChatTarget{Username: s}, nil
}

// ChannelLogger mirrors errors and command invocations to a Telegram channel.
// Sends happen in the background. Wait blocks until they finish.
type ChannelLogger struct {
	sender Sender
	target ChatTarget
	log    *zerolog.Logger
	wg     sync.WaitGroup
}

func NewChannelLogger(sender Sender, channelID string, logger *zerolog.Logger) (*ChannelLogger, error) {
	target, err := NormalizeChatID(channelID)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "ChannelLogger").Str("channel", target.String()).Logger()
	return &ChannelLogger{sender: sender, target: target, log: &l}, nil
}

func (c *ChannelLogger) message(text string) tgbotapi.MessageConfig {
	if c.target.Username != "" {
		return tgbotapi.NewMessageToChannel(c.target.Username, text)
	}
	return tgbotapi.NewMessage(c.target.ID, text)
}

// Send posts text to the channel without waiting for the result.
func (c *ChannelLogger) Send(text string) {
	if c == nil || c.sender == nil {
		return
	}
	msg := c.message(truncate(text, 4096))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Interface("panic", r).Msg("channel log send panicked")
			}
		}()
		if _, err := c.sender.Send(msg); err != nil {
			c.log.Warn().Err(err).Msg("failed to send log message to channel")
		}
	}()
}

func (c *ChannelLogger) Notify(_ context.Context, summary string, err error) {
	c.Send(FormatError(summary, err))
}

// LogCommand reports a command invocation with the chat, user and message id.
func (c *ChannelLogger) LogCommand(_ context.Context, command string, msg *model.MessageRecord, extra ...string) {
	c.Send(FormatCommand(command, msg, extra...))
}

// Wait blocks until queued sends are done.
func (c *ChannelLogger) Wait() { c.wg.Wait() }

func FormatError(summary string, err error) string {
	details := "unknown error"
	if err != nil {
		details = err.Error()
	}
	return fmt.Sprintf("❌ %s\n%s", summary, details)
}

func FormatCommand(command string, msg *model.MessageRecord, extra ...string) string {
	messageID := "unknown"
	if msg != nil && msg.MessageID != 0 {
		messageID = strconv.Itoa(msg.MessageID)
	}
	chat := "chatId=unknown"
	user := "unknown user"
	if msg != nil {
		chat = msg.ChatLabel()
		user = msg.AuthorName()
	}
	lines := []string{
		fmt.Sprintf("📣 %s invoked", command),
		"Chat: " + chat,
		"User: " + user,
		"MessageId: " + messageID,
	}
	lines = append(lines, extra...)
	return strings.Join(lines, "\n")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
