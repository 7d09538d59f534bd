package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/infra/metrics"
)

// Compile-time check
var _ QueueUseCase = (*queueUC)(nil)

// Waker is notified after every enqueue so the worker can claim at once.
type Waker interface {
	Notify()
}

type QueueUseCase interface {
	// Submit enqueues a job and returns its id together with the number of
	// unfinished jobs of the chat, the new one included.
	Submit(ctx context.Context, kind model.LLMJobKind, chatID int64, requestMessageID int, payload model.LLMJobPayload) (int64, int, error)
}

type queueUC struct {
	jobs  repository.LLMJobRepository
	waker Waker
	log   *zerolog.Logger
}

func NewQueueUseCase(jobs repository.LLMJobRepository, waker Waker, logger *zerolog.Logger) *queueUC {
	l := logger.With().Str("component", "QueueUseCase").Logger()
	return &queueUC{jobs: jobs, waker: waker, log: &l}
}

func (q *queueUC) Submit(ctx context.Context, kind model.LLMJobKind, chatID int64, requestMessageID int, payload model.LLMJobPayload) (int64, int, error) {
	if _, err := model.NewLLMJob(kind, chatID, requestMessageID, payload, time.Now()); err != nil {
		return 0, 0, err
	}
	id, err := q.jobs.Enqueue(ctx, kind, chatID, requestMessageID, payload)
	if err != nil {
		return 0, 0, fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	metrics.IncJobEnqueued(string(kind))
	if q.waker != nil {
		q.waker.Notify()
	}

	pending, err := q.jobs.CountPending(ctx, chatID)
	if err != nil {
		// the job is queued; the position is only informative
		q.log.Warn().Err(err).Int64("job_id", id).Msg("count pending failed")
		pending = 1
	}
	q.log.Info().Int64("job_id", id).Str("kind", string(kind)).Int64("chat_id", chatID).Int("pending", pending).Msg("job enqueued")
	return id, pending, nil
}
