package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/infra/metrics"
	"veritheo-bot/internal/usecase"
)

// Request is one parsed bot command.
type Request struct {
	Command string // without the leading slash
	Args    string
	Message *model.MessageRecord
	ReplyTo *model.MessageRecord // nil when the command is not a reply
}

func (r Request) chatID() int64 { return r.Message.ChatID }

type FacadeOptions struct {
	UntouchableIDs []int64
	// GroupContextMessages is how many recent chat messages /ask_group sends along.
	GroupContextMessages int
}

// BotFacade composes usecases into high-level bot commands.
// Keep the facade methods returning strings so the Telegram adapter just forwards them to the chat.
type BotFacade struct {
	queue    usecase.QueueUseCase
	guard    usecase.GuardUseCase
	heresy   usecase.HeresyUseCase
	messages repository.MessageRepository
	stats    QueueStats
	tr       Translator

	untouchable  map[int64]struct{}
	groupContext int
	log          *zerolog.Logger
}

func NewBotFacade(
	queue usecase.QueueUseCase,
	guard usecase.GuardUseCase,
	heresy usecase.HeresyUseCase,
	messages repository.MessageRepository,
	stats QueueStats,
	tr Translator,
	opts FacadeOptions,
	logger *zerolog.Logger,
) *BotFacade {
	untouchable := make(map[int64]struct{}, len(opts.UntouchableIDs))
	for _, id := range opts.UntouchableIDs {
		untouchable[id] = struct{}{}
	}
	if opts.GroupContextMessages <= 0 {
		opts.GroupContextMessages = 30
	}
	l := logger.With().Str("component", "BotFacade").Logger()
	return &BotFacade{
		queue:        queue,
		guard:        guard,
		heresy:       heresy,
		messages:     messages,
		stats:        stats,
		tr:           tr,
		untouchable:  untouchable,
		groupContext: opts.GroupContextMessages,
		log:          &l,
	}
}

func (b *BotFacade) HandleStart(context.Context, Request) (string, error) {
	return b.tr.T("start"), nil
}

func (b *BotFacade) HandleHelp(context.Context, Request) (string, error) {
	return b.tr.T("help"), nil
}

func (b *BotFacade) HandlePersona(context.Context, Request) (string, error) {
	return b.tr.T("persona"), nil
}

func (b *BotFacade) HandlePing(context.Context, Request) (string, error) {
	return b.tr.T("ping"), nil
}

// HandleQueueStats reports job counts per status. Admin only.
func (b *BotFacade) HandleQueueStats(ctx context.Context, _ Request) (string, error) {
	if b.stats == nil {
		return b.tr.T("generic_error"), nil
	}
	counts, err := b.stats.CountByStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("count jobs: %w", err)
	}
	return b.tr.T("queue_stats",
		counts[model.LLMJobStatusPending],
		counts[model.LLMJobStatusProcessing],
		counts[model.LLMJobStatusDone],
		counts[model.LLMJobStatusFailed],
	), nil
}

// HandleAsk queues a plain question.
func (b *BotFacade) HandleAsk(ctx context.Context, req Request) (string, error) {
	question := strings.TrimSpace(req.Args)
	if question == "" {
		return b.tr.T("ask_missing_question"), nil
	}
	return b.submit(ctx, model.LLMJobKindAsk, req, model.LLMJobPayload{
		Question:   question,
		AuthorName: req.Message.AuthorName(),
		ChatTitle:  req.Message.ChatLabel(),
		UserID:     req.Message.FromID,
	})
}

// HandleAskGroup queues a question together with the latest chat messages.
func (b *BotFacade) HandleAskGroup(ctx context.Context, req Request) (string, error) {
	question := strings.TrimSpace(req.Args)
	if question == "" {
		return b.tr.T("ask_group_missing_question"), nil
	}
	recent, err := b.messages.RecentChatMessages(ctx, req.chatID(), b.groupContext+1)
	if err != nil {
		return "", fmt.Errorf("load group context: %w", err)
	}
	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		if m.MessageID == req.Message.MessageID || !m.HasText() {
			continue
		}
		lines = append(lines, m.AuthorName()+": "+strings.TrimSpace(m.Text))
	}
	if len(lines) > b.groupContext {
		lines = lines[len(lines)-b.groupContext:]
	}
	return b.submit(ctx, model.LLMJobKindAskGroup, req, model.LLMJobPayload{
		Question:   question,
		Context:    lines,
		AuthorName: req.Message.AuthorName(),
		ChatTitle:  req.Message.ChatLabel(),
		UserID:     req.Message.FromID,
	})
}

// analysis holds the message keys of one critique command.
type analysis struct {
	kind          model.LLMJobKind
	command       string
	replyRequired string // empty: free text after the command is accepted
	missing       string
	untouchable   string
	botBlocked    string
}

var (
	verifyAnalysis = analysis{
		kind: model.LLMJobKindVerify, command: "verify",
		replyRequired: "verify_reply_required", missing: "verify_original_missing",
		untouchable: "verify_untouchable", botBlocked: "verify_bot_message_blocked",
	}
	fallacyAnalysis = analysis{
		kind: model.LLMJobKindFallacy, command: "fallacy_detector",
		replyRequired: "fallacy_reply_required", missing: "fallacy_original_missing",
		untouchable: "fallacy_untouchable", botBlocked: "fallacy_bot_message_blocked",
	}
	roastAnalysis = analysis{
		kind: model.LLMJobKindRoast, command: "roast",
		missing:     "roast_missing_argument",
		untouchable: "roast_untouchable", botBlocked: "roast_bot_message_blocked",
	}
)

func (b *BotFacade) HandleVerify(ctx context.Context, req Request) (string, error) {
	return b.analyze(ctx, req, verifyAnalysis)
}

func (b *BotFacade) HandleFallacy(ctx context.Context, req Request) (string, error) {
	return b.analyze(ctx, req, fallacyAnalysis)
}

func (b *BotFacade) HandleRoast(ctx context.Context, req Request) (string, error) {
	return b.analyze(ctx, req, roastAnalysis)
}

func (b *BotFacade) analyze(ctx context.Context, req Request, a analysis) (string, error) {
	target := req.ReplyTo
	if target == nil && a.replyRequired != "" {
		return b.tr.T(a.replyRequired), nil
	}

	var text string
	author := req.Message
	if target != nil {
		if b.isUntouchable(target.FromID) {
			return b.tr.T(a.untouchable), nil
		}
		if target.FromIsBot {
			return b.tr.T(a.botBlocked), nil
		}
		text = b.originalText(ctx, target)
		author = target
	}
	if text == "" && a.replyRequired == "" {
		text = strings.TrimSpace(req.Args)
		author = req.Message
	}
	if text == "" {
		return b.tr.T(a.missing), nil
	}

	if blocked := b.ownOutput(ctx, a.command, req.chatID(), text); blocked {
		return b.tr.T(a.botBlocked), nil
	}

	return b.submit(ctx, a.kind, req, model.LLMJobPayload{
		Question:   text,
		AuthorName: author.AuthorName(),
		ChatTitle:  req.Message.ChatLabel(),
		UserID:     author.FromID,
	})
}

// originalText prefers the text carried by the update and falls back to the
// archive, which also has captions and edited texts.
func (b *BotFacade) originalText(ctx context.Context, target *model.MessageRecord) string {
	if t := strings.TrimSpace(target.Text); t != "" {
		return t
	}
	stored, err := b.messages.FindByMessageID(ctx, target.ChatID, target.MessageID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			b.log.Warn().Err(err).Int("message_id", target.MessageID).Msg("archive lookup failed")
		}
		return ""
	}
	return strings.TrimSpace(stored.Text)
}

// ownOutput reports whether text is (close to) something the bot already
// sent in the chat. Guard failures let the request through.
func (b *BotFacade) ownOutput(ctx context.Context, command string, chatID int64, text string) bool {
	if b.guard == nil {
		return false
	}
	res, err := b.guard.Check(ctx, chatID, text)
	if err != nil {
		metrics.ObserveGuardCheck(command, "error", "", 0)
		logging.With(ctx, b.log).Warn().Err(err).Str("command", command).Msg("similarity guard failed, allowing request")
		return false
	}
	outcome := "allowed"
	if res.Blocked {
		outcome = "blocked"
		logging.With(ctx, b.log).Info().
			Str("command", command).
			Str("reason", string(res.Reason)).
			Float64("similarity", res.Similarity).
			Int("matched_message_id", res.MatchedMessageID).
			Msg("request matches the bot's own output")
	}
	metrics.ObserveGuardCheck(command, outcome, string(res.Reason), res.Similarity)
	return res.Blocked
}

// HandleMyHeresy answers from the cache or queues a heresy verdict for the
// author of the replied message.
func (b *BotFacade) HandleMyHeresy(ctx context.Context, req Request) (string, error) {
	if !req.Message.IsGroup() {
		return b.tr.T("heresy_group_only"), nil
	}
	target := req.ReplyTo
	if target == nil {
		return b.tr.T("heresy_reply_required"), nil
	}
	if target.FromIsBot {
		return b.tr.T("heresy_bot_blocked"), nil
	}
	if target.FromID == 0 {
		return b.tr.T("heresy_user_missing"), nil
	}
	if b.isUntouchable(target.FromID) {
		return b.tr.T("heresy_untouchable"), nil
	}

	cached, err := b.heresy.Cached(ctx, req.chatID(), target.FromID)
	if err != nil {
		b.log.Warn().Err(err).Msg("heresy cache lookup failed")
	}
	if cached != nil {
		return cached.Response, nil
	}

	material, err := b.heresy.Material(ctx, req.chatID(), target.FromID)
	if errors.Is(err, usecase.ErrInsufficientMaterial) {
		return b.tr.T("heresy_insufficient_material"), nil
	}
	if err != nil {
		return "", fmt.Errorf("collect heresy material: %w", err)
	}
	return b.submit(ctx, model.LLMJobKindHeresy, req, model.LLMJobPayload{
		Context:    material,
		AuthorName: target.AuthorName(),
		ChatTitle:  req.Message.ChatLabel(),
		UserID:     target.FromID,
	})
}

func (b *BotFacade) submit(ctx context.Context, kind model.LLMJobKind, req Request, payload model.LLMJobPayload) (string, error) {
	_, pending, err := b.queue.Submit(ctx, kind, req.chatID(), req.Message.MessageID, payload)
	if err != nil {
		return "", err
	}
	return b.QueueMessage(pending), nil
}

// QueueMessage is the acknowledgement for a queued request, pending counting
// the new job.
func (b *BotFacade) QueueMessage(pending int) string {
	if pending > 1 {
		return b.tr.T("queue_position", pending-1)
	}
	return b.tr.T("queue_received")
}

func (b *BotFacade) isUntouchable(userID int64) bool {
	_, ok := b.untouchable[userID]
	return ok
}
