package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev testing.
// It logs requests and answers with a canned echo.
type NoopAIAdapter struct {
	log       *zerolog.Logger
	delay     time.Duration
	tokenizer *Tokenizer
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	l := logger.With().Str("component", "NoopAI").Logger()
	return &NoopAIAdapter{log: &l, delay: 100 * time.Millisecond, tokenizer: NewTokenizer()}
}

func (a *NoopAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return adapter.Completion{}, ctx.Err()
	}
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	a.log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Bool("web_search", req.WebSearch).Msg("noop completion")
	prompt := a.tokenizer.CountMessages(req.Model, req.Messages)
	text := fmt.Sprintf("(noop) %d mensaje(s) recibidos. Último: %s", len(req.Messages), last)
	completion := a.tokenizer.CountText(req.Model, text)
	return adapter.Completion{
		Text:     text,
		Provider: "noop",
		Model:    req.Model,
		Usage:    adapter.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
	}, nil
}

func (a *NoopAIAdapter) CountTokens(_ context.Context, model string, messages []adapter.Message) (int, error) {
	return a.tokenizer.CountMessages(model, messages), nil
}
