package ai

import (
	"context"

	"golang.org/x/sync/semaphore"

	"veritheo-bot/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

type limitedAI struct {
	adapter.AIServiceAdapter
	slots *semaphore.Weighted
}

// NewLimitedAI caps in-flight completions at maxConcurrent across all job
// workers. A caller waiting for a slot gives up when its context ends.
// Token counting is local and is not limited.
func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{AIServiceAdapter: inner, slots: semaphore.NewWeighted(int64(maxConcurrent))}
}

func (l *limitedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return adapter.Completion{}, err
	}
	defer l.slots.Release(1)
	return l.AIServiceAdapter.Complete(ctx, req)
}
