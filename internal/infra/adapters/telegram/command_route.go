package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"veritheo-bot/internal/application"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/infra/metrics"
	red "veritheo-bot/internal/infra/redis"
)

type commandHandler func(ctx context.Context, req application.Request) (string, error)

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	f := r.Facade
	return map[string]commandHandler{
		"start":            f.HandleStart,
		"help":             f.HandleHelp,
		"persona":          f.HandlePersona,
		"ping":             f.HandlePing,
		"ask":              f.HandleAsk,
		"ask_group":        f.HandleAskGroup,
		"verify":           f.HandleVerify,
		"fallacy_detector": f.HandleFallacy,
		"roast":            f.HandleRoast,
		"my_heresy":        f.HandleMyHeresy,

		// These handlers are wrapped in our adminOnly middleware.
		"queue_stats": r.adminOnly(f.HandleQueueStats),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, req application.Request) (string, error) {
		if !r.isAdmin(req.Message.FromID) {
			return r.Tr.T("admin_only"), nil
		}
		return next(ctx, req)
	}
}

func (r *RealTelegramBotAdapter) handleCommand(ctx context.Context, msg *tgbotapi.Message, rec *model.MessageRecord) error {
	command := msg.Command()
	route, ok := r.commandRoutes()[command]
	if !ok {
		return nil
	}
	log := logging.With(ctx, r.log)

	if r.isBanned(msg.From.ID) {
		return r.reply(ctx, rec, r.Tr.T("banned"))
	}
	if r.Limiter != nil {
		allowed, err := r.Limiter.Allow(ctx, red.UserCommandKey(msg.From.ID, command), r.cfg.RateLimit.Commands, r.cfg.RateLimit.Window)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("rate limiter unavailable")
		case !allowed:
			metrics.IncRateLimitTriggered("/" + command)
			return r.reply(ctx, rec, r.Tr.T("rate_limited"))
		}
	}
	metrics.IncTelegramCommand("/" + command)
	if r.Commands != nil {
		r.Commands.LogCommand(ctx, command, rec)
	}

	req := application.Request{
		Command: command,
		Args:    msg.CommandArguments(),
		Message: rec,
		ReplyTo: ToRecord(msg.ReplyToMessage),
	}
	text, err := route(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("command", command).Str("text", logging.Redact(rec.Text, r.Dev)).Msg("command failed")
		r.Notifier.Notify(ctx, fmt.Sprintf("/%s failed (chatId=%d, messageId=%d)", command, rec.ChatID, rec.MessageID), err)
		text = r.Tr.T("generic_error")
	}
	if text == "" {
		return nil
	}
	return r.reply(ctx, rec, text)
}
