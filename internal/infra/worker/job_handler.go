package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/infra/prompts"
	"veritheo-bot/internal/usecase"
)

// TypingInterval keeps the "typing…" indicator alive; Telegram drops it after ~5s.
const TypingInterval = 4500 * time.Millisecond

// TokenCounter counts the prompt tokens of a message list for a model.
type TokenCounter interface {
	CountMessages(model string, messages []adapter.Message) int
}

// HandlerConfig selects the model per job kind. Kinds without an entry use
// DefaultModel.
type HandlerConfig struct {
	Models           map[model.LLMJobKind]string
	DefaultModel     string
	MaxContextTokens int
	MaxOutputTokens  int
}

// JobHandler turns a claimed job into one model call and delivers the answer.
type JobHandler struct {
	ai     adapter.AIServiceAdapter
	reply  usecase.ReplyUseCase
	heresy usecase.HeresyUseCase
	chat   adapter.ChatClient
	tokens TokenCounter
	cfg    HandlerConfig
	typing time.Duration
	log    *zerolog.Logger
}

var _ Handler = (*JobHandler)(nil)

func NewJobHandler(
	ai adapter.AIServiceAdapter,
	reply usecase.ReplyUseCase,
	heresy usecase.HeresyUseCase,
	chat adapter.ChatClient,
	tokens TokenCounter,
	cfg HandlerConfig,
	logger *zerolog.Logger,
) *JobHandler {
	l := logger.With().Str("component", "JobHandler").Logger()
	return &JobHandler{
		ai:     ai,
		reply:  reply,
		heresy: heresy,
		chat:   chat,
		tokens: tokens,
		cfg:    cfg,
		typing: TypingInterval,
		log:    &l,
	}
}

func (h *JobHandler) modelFor(kind model.LLMJobKind) string {
	if m := strings.TrimSpace(h.cfg.Models[kind]); m != "" {
		return m
	}
	return h.cfg.DefaultModel
}

func (h *JobHandler) Handle(ctx context.Context, job *model.LLMJob) error {
	req, err := h.buildRequest(job)
	if err != nil {
		return err
	}

	stop := h.keepTyping(ctx, job.ChatID)
	defer stop()

	log := logging.With(ctx, h.log)
	out, err := h.ai.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("%s completion: %w", job.Kind, err)
	}
	log.Info().
		Str("kind", string(job.Kind)).
		Str("provider", out.Provider).
		Str("model", out.Model).
		Int("prompt_tokens", out.Usage.PromptTokens).
		Int("completion_tokens", out.Usage.CompletionTokens).
		Int("total_tokens", out.Usage.TotalTokens).
		Msg("token usage")

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return fmt.Errorf("%s: %w", job.Kind, domain.ErrEmptyCompletion)
	}
	stop()

	if _, err := h.reply.Deliver(ctx, job.ChatID, job.RequestMessageID, text); err != nil {
		return err
	}

	switch job.Kind {
	case model.LLMJobKindAsk, model.LLMJobKindAskGroup:
		if err := h.reply.DeliverSources(ctx, job.ChatID, job.RequestMessageID, out.Sources); err != nil {
			log.Warn().Err(err).Msg("failed to deliver sources")
		}
	case model.LLMJobKindHeresy:
		if err := h.heresy.Save(ctx, job.ChatID, job.Payload.UserID, text); err != nil {
			log.Error().Err(err).Int64("user_id", job.Payload.UserID).Msg("failed to cache heresy verdict")
		}
	}
	return nil
}

func (h *JobHandler) buildRequest(job *model.LLMJob) (adapter.CompletionRequest, error) {
	system, err := prompts.System(job.Kind)
	if err != nil {
		return adapter.CompletionRequest{}, fmt.Errorf("%w: %w", domain.ErrPermanent, err)
	}
	p := job.Payload
	req := adapter.CompletionRequest{
		Model:           h.modelFor(job.Kind),
		System:          system,
		MaxOutputTokens: h.cfg.MaxOutputTokens,
	}

	switch job.Kind {
	case model.LLMJobKindAsk:
		if strings.TrimSpace(p.Question) == "" {
			return req, fmt.Errorf("%w: ask without question", domain.ErrPermanent)
		}
		req.WebSearch = true
		req.Messages = []adapter.Message{{Role: "user", Content: p.Question}}

	case model.LLMJobKindAskGroup:
		if strings.TrimSpace(p.Question) == "" {
			return req, fmt.Errorf("%w: ask_group without question", domain.ErrPermanent)
		}
		req.WebSearch = true
		req.Messages = h.trimContext(req.Model, system, p.Context, p.Question)

	case model.LLMJobKindVerify, model.LLMJobKindFallacy, model.LLMJobKindRoast:
		if strings.TrimSpace(p.Question) == "" {
			return req, fmt.Errorf("%w: %s without message", domain.ErrPermanent, job.Kind)
		}
		content, err := prompts.AnalysisRequest(job.Kind, p.Question, p.AuthorName, p.ChatTitle)
		if err != nil {
			return req, fmt.Errorf("%w: %w", domain.ErrPermanent, err)
		}
		req.Messages = []adapter.Message{{Role: "user", Content: content}}

	case model.LLMJobKindHeresy:
		if len(p.Context) == 0 || p.UserID == 0 {
			return req, fmt.Errorf("%w: heresy without material", domain.ErrPermanent)
		}
		req.Messages = []adapter.Message{{Role: "user", Content: prompts.HeresyRequest(p.Context, p.AuthorName, p.ChatTitle)}}

	default:
		return req, fmt.Errorf("%w: %w: %q", domain.ErrPermanent, domain.ErrUnknownJobKind, job.Kind)
	}
	return req, nil
}

// trimContext keeps the newest context lines that fit MaxContextTokens
// together with the system prompt and the question. The question is always
// kept.
func (h *JobHandler) trimContext(modelName, system string, lines []string, question string) []adapter.Message {
	msgs := make([]adapter.Message, 0, len(lines)+1)
	for _, c := range lines {
		if strings.TrimSpace(c) == "" {
			continue
		}
		msgs = append(msgs, adapter.Message{Role: "user", Content: c})
	}
	msgs = append(msgs, adapter.Message{Role: "user", Content: question})

	if h.tokens == nil || h.cfg.MaxContextTokens <= 0 {
		return msgs
	}
	withSystem := func(m []adapter.Message) []adapter.Message {
		return append([]adapter.Message{{Role: "system", Content: system}}, m...)
	}
	dropped := 0
	for len(msgs) > 1 && h.tokens.CountMessages(modelName, withSystem(msgs)) > h.cfg.MaxContextTokens {
		msgs = msgs[1:]
		dropped++
	}
	if dropped > 0 {
		h.log.Debug().Int("dropped", dropped).Int("kept", len(msgs)-1).Msg("trimmed group context")
	}
	return msgs
}

// keepTyping sends the typing action now and every h.typing until the
// returned stop func is called or ctx ends. stop is idempotent.
func (h *JobHandler) keepTyping(ctx context.Context, chatID int64) func() {
	if h.chat == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(h.typing)
		defer ticker.Stop()
		for {
			if err := h.chat.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
				h.log.Debug().Err(err).Int64("chat_id", chatID).Msg("typing indicator failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
