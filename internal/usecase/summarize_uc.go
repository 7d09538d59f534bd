package usecase

import (
	"context"
	"fmt"
	"strings"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/prompts"
)

// Compile-time check
var _ Summarizer = (*aiSummarizer)(nil)

type aiSummarizer struct {
	ai    adapter.AIServiceAdapter
	model string
}

// NewSummarizer returns a Summarizer backed by the given model.
func NewSummarizer(ai adapter.AIServiceAdapter, model string) *aiSummarizer {
	return &aiSummarizer{ai: ai, model: model}
}

func (s *aiSummarizer) Summarize(ctx context.Context, text string, limit int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if len([]rune(text)) <= limit {
		return text, nil
	}
	out, err := s.ai.Complete(ctx, adapter.CompletionRequest{
		Model:    s.model,
		System:   prompts.SummarySystem(limit),
		Messages: []adapter.Message{{Role: "user", Content: prompts.SummaryRequest(text, limit)}},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	summary := strings.TrimSpace(out.Text)
	if summary == "" {
		return "", domain.ErrEmptyCompletion
	}
	return Truncate(summary, limit), nil
}
