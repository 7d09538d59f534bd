package repository

import (
	"context"

	"veritheo-bot/internal/domain/model"
)

type LLMJobRepository interface {
	// Enqueue inserts a pending job available immediately and returns its id.
	Enqueue(ctx context.Context, kind model.LLMJobKind, chatID int64, requestMessageID int, payload model.LLMJobPayload) (int64, error)
	// ClaimNext atomically moves the oldest eligible pending job to processing.
	// A job is eligible when available_at <= now, its chat is not excluded and
	// no other job of the same chat is processing. Returns (nil, nil) when
	// nothing is eligible.
	ClaimNext(ctx context.Context, excludedChatIDs []int64) (*model.LLMJob, error)
	MarkDone(ctx context.Context, id int64) error
	// MarkFailed schedules a retry while attempts < maxAttempts, otherwise the
	// job becomes failed. The resulting status is returned.
	MarkFailed(ctx context.Context, id int64, errMsg string, maxAttempts int) (model.LLMJobStatus, error)
	// RequeueOrphaned moves every processing job back to pending.
	RequeueOrphaned(ctx context.Context) (int, error)
	// CountPending counts pending and processing jobs of a chat.
	CountPending(ctx context.Context, chatID int64) (int, error)

	FindByID(ctx context.Context, id int64) (*model.LLMJob, error)
	CountByStatus(ctx context.Context) (map[model.LLMJobStatus]int, error)
	// Retry puts a failed job back in the queue with a fresh attempt budget.
	Retry(ctx context.Context, id int64) error
}
