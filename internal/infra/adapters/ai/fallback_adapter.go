package ai

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*FallbackAdapter)(nil)

// FallbackAdapter retries a completion once on fallbackModel when the primary
// call fails with adapter.ErrTransient. Web search is dropped on the fallback
// call since only Gemini grounds answers.
type FallbackAdapter struct {
	inner         adapter.AIServiceAdapter
	fallbackModel string
	log           *zerolog.Logger
}

func NewFallbackAdapter(inner adapter.AIServiceAdapter, fallbackModel string, logger *zerolog.Logger) adapter.AIServiceAdapter {
	if fallbackModel == "" {
		return inner
	}
	l := logger.With().Str("component", "FallbackAdapter").Logger()
	return &FallbackAdapter{inner: inner, fallbackModel: fallbackModel, log: &l}
}

func (f *FallbackAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return f.inner.CountTokens(ctx, model, messages)
}

func (f *FallbackAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	out, err := f.inner.Complete(ctx, req)
	if err == nil || !errors.Is(err, adapter.ErrTransient) || req.Model == f.fallbackModel {
		return out, err
	}
	if ctx.Err() != nil {
		return out, err
	}
	f.log.Warn().Err(err).Str("model", req.Model).Str("fallback", f.fallbackModel).Msg("transient provider error, using fallback model")
	metrics.IncAIFallback(req.Model, f.fallbackModel)

	alt := req
	alt.Model = f.fallbackModel
	alt.WebSearch = false
	out, ferr := f.inner.Complete(ctx, alt)
	if ferr != nil {
		return out, errors.Join(err, ferr)
	}
	return out, nil
}
