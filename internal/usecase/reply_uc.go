package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/infra/metrics"
)

// TelegramMessageLimit is the maximum length of one Telegram text message.
const TelegramMessageLimit = 4096

// Compile-time check
var _ ReplyUseCase = (*replyUC)(nil)

// ReplyUseCase delivers model output to a chat and archives what was sent.
type ReplyUseCase interface {
	// Deliver fits text into one message, sends it (Markdown first, then
	// plain) and archives the sent message. A failure of both sends is
	// reported as domain.ErrDelivery.
	Deliver(ctx context.Context, chatID int64, replyTo int, text string) (*model.MessageRecord, error)
	// DeliverSources sends the sources list when there is anything to list.
	DeliverSources(ctx context.Context, chatID int64, replyTo int, sources []adapter.Source) error
}

// Summarizer condenses text to at most limit characters.
type Summarizer interface {
	Summarize(ctx context.Context, text string, limit int) (string, error)
}

type replyUC struct {
	chat       adapter.ChatClient
	messages   repository.MessageRepository
	summarizer Summarizer
	log        *zerolog.Logger
}

func NewReplyUseCase(chat adapter.ChatClient, messages repository.MessageRepository, summarizer Summarizer, logger *zerolog.Logger) *replyUC {
	l := logger.With().Str("component", "ReplyUseCase").Logger()
	return &replyUC{chat: chat, messages: messages, summarizer: summarizer, log: &l}
}

func (r *replyUC) Deliver(ctx context.Context, chatID int64, replyTo int, text string) (*model.MessageRecord, error) {
	text = r.fit(ctx, text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty reply", domain.ErrInvalidArgument)
	}

	var lastErr error
	for _, mode := range []string{adapter.ParseModeMarkdown, adapter.ParseModeNone} {
		sent, err := r.chat.SendMessage(ctx, adapter.OutgoingMessage{
			ChatID:           chatID,
			Text:             text,
			ReplyToMessageID: replyTo,
			ParseMode:        mode,
		})
		if err != nil {
			lastErr = err
			if mode != adapter.ParseModeNone {
				r.log.Warn().Err(err).Int64("chat_id", chatID).Msg("markdown send failed, retrying without formatting")
			}
			continue
		}
		if sent != nil {
			if err := r.messages.Record(ctx, sent); err != nil {
				r.log.Error().Err(err).Int64("chat_id", chatID).Int("message_id", sent.MessageID).Msg("failed to persist bot reply")
			} else {
				metrics.IncMessageArchived("outgoing")
			}
		}
		return sent, nil
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrDelivery, lastErr)
}

func (r *replyUC) DeliverSources(ctx context.Context, chatID int64, replyTo int, sources []adapter.Source) error {
	msg, ok := BuildSourcesMessage(sources)
	if !ok {
		return nil
	}
	_, err := r.Deliver(ctx, chatID, replyTo, msg)
	return err
}

// fit summarizes over-long text and falls back to a hard cut.
func (r *replyUC) fit(ctx context.Context, text string) string {
	if utf8.RuneCountInString(text) <= TelegramMessageLimit {
		return text
	}
	if r.summarizer != nil {
		summary, err := r.summarizer.Summarize(ctx, text, TelegramMessageLimit)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Msg("summarize failed, truncating reply")
		case strings.TrimSpace(summary) != "":
			return Truncate(strings.TrimSpace(summary), TelegramMessageLimit)
		}
	}
	return Truncate(text, TelegramMessageLimit)
}

// Truncate cuts text to limit runes, the last one being an ellipsis.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit <= 1 {
		return "…"
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:limit-1]), " \t\n") + "…"
}

const sourcesHeader = "🙏 Gracias por tu pregunta. Aquí encuentras las fuentes consultadas:"

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `_`, `\_`, "`", "\\`",
	`[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`,
)

// BuildSourcesMessage renders url sources as a Markdown list. ok is false
// when no usable source remains.
func BuildSourcesMessage(sources []adapter.Source) (string, bool) {
	seen := make(map[string]struct{})
	lines := []string{sourcesHeader, ""}
	for _, s := range sources {
		if s.Type != "url" {
			continue
		}
		u := strings.TrimSpace(s.URL)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = u
			if parsed, err := url.Parse(u); err == nil && parsed.Hostname() != "" {
				title = parsed.Hostname()
			}
		}
		lines = append(lines, fmt.Sprintf("- [%s](%s)", markdownEscaper.Replace(title), u))
	}
	if len(seen) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}
