package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"veritheo-bot/internal/application"
	"veritheo-bot/internal/config"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/infra/metrics"
	"veritheo-bot/internal/infra/worker"
)

// Limiter is satisfied by *redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CommandLogger is satisfied by *opslog.ChannelLogger.
type CommandLogger interface {
	LogCommand(ctx context.Context, command string, msg *model.MessageRecord, extra ...string)
}

type Deps struct {
	API      API
	Client   *Client
	Facade   *application.BotFacade
	Messages repository.MessageRepository
	Tr       application.Translator
	Notifier adapter.ErrorNotifier
	Limiter  Limiter       // optional
	Commands CommandLogger // optional
	Dev      bool          // log user text unredacted
}

// RealTelegramBotAdapter polls updates, archives incoming messages and
// routes commands to the BotFacade.
type RealTelegramBotAdapter struct {
	Deps
	cfg config.BotConfig

	adminIDsMap  map[int64]struct{}
	bannedIDsMap map[int64]struct{}
	pool         *worker.Pool
	log          *zerolog.Logger
}

func NewRealTelegramBotAdapter(cfg config.BotConfig, deps Deps, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if deps.API == nil || deps.Client == nil {
		return nil, errors.New("telegram api is nil")
	}
	if deps.Facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if deps.Messages == nil || deps.Tr == nil || deps.Notifier == nil {
		return nil, errors.New("messages, translator and notifier are required")
	}
	l := logger.With().Str("component", "TelegramBot").Logger()
	return &RealTelegramBotAdapter{
		Deps:         deps,
		cfg:          cfg,
		adminIDsMap:  idSet(cfg.AdminIDs),
		bannedIDsMap: idSet(cfg.BannedIDs),
		pool:         worker.NewPool(cfg.Workers, logger),
		log:          &l,
	}, nil
}

func idSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// StartPolling blocks until ctx is done, then waits for running handlers.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = r.cfg.PollTimeout
	updates := r.API.GetUpdatesChan(u)

	r.pool.Start(ctx)
	defer r.pool.Stop()
	defer r.API.StopReceivingUpdates()

	r.log.Info().Int("workers", r.cfg.Workers).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("polling stopped")
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			err := r.pool.Submit(ctx, func(ctx context.Context) error {
				return r.handleUpdate(ctx, up)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.Chat == nil {
		return nil
	}
	ctx = logging.WithTraceID(ctx, ulid.Make().String())
	ctx = logging.WithChatID(ctx, msg.Chat.ID)

	rec := ToRecord(msg)
	r.archive(ctx, rec, "incoming")

	if update.Message == nil || !msg.IsCommand() || msg.From == nil {
		return nil
	}
	if !r.addressedToUs(msg) {
		return nil
	}
	ctx = logging.WithUserID(ctx, msg.From.ID)
	return r.handleCommand(ctx, msg, rec)
}

// addressedToUs drops "/cmd@other_bot" in groups.
func (r *RealTelegramBotAdapter) addressedToUs(msg *tgbotapi.Message) bool {
	full := msg.CommandWithAt()
	at := strings.IndexByte(full, '@')
	if at < 0 || r.cfg.Username == "" {
		return true
	}
	return strings.EqualFold(full[at+1:], strings.TrimPrefix(r.cfg.Username, "@"))
}

func (r *RealTelegramBotAdapter) archive(ctx context.Context, rec *model.MessageRecord, direction string) {
	if !rec.HasText() {
		return
	}
	if err := r.Messages.Record(ctx, rec); err != nil {
		logging.With(ctx, r.log).Error().Err(err).Int("message_id", rec.MessageID).Msg("failed to archive message")
		return
	}
	metrics.IncMessageArchived(direction)
}

// reply answers a command in plain text and archives what was sent.
func (r *RealTelegramBotAdapter) reply(ctx context.Context, to *model.MessageRecord, text string) error {
	sent, err := r.Client.SendMessage(ctx, adapter.OutgoingMessage{
		ChatID:           to.ChatID,
		Text:             text,
		ReplyToMessageID: to.MessageID,
	})
	if err != nil {
		return err
	}
	if sent != nil {
		r.archive(ctx, sent, "outgoing")
	}
	return nil
}

func (r *RealTelegramBotAdapter) isAdmin(tgID int64) bool {
	_, ok := r.adminIDsMap[tgID]
	return ok
}

func (r *RealTelegramBotAdapter) isBanned(tgID int64) bool {
	_, ok := r.bannedIDsMap[tgID]
	return ok
}
