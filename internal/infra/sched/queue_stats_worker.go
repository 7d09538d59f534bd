package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/infra/db"
	"veritheo-bot/internal/infra/metrics"
)

// JobCounter is the part of the job repository the worker reads.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[model.LLMJobStatus]int, error)
}

// QueueStatsWorker periodically publishes queue depth and pool gauges.
type QueueStatsWorker struct {
	interval  time.Duration
	jobs      JobCounter
	poolStats func() db.PoolStats
	log       *zerolog.Logger
}

func NewQueueStatsWorker(interval time.Duration, jobs JobCounter, poolStats func() db.PoolStats, logger *zerolog.Logger) *QueueStatsWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "QueueStatsWorker").Logger()
	return &QueueStatsWorker{
		interval:  interval,
		jobs:      jobs,
		poolStats: poolStats,
		log:       &l,
	}
}

func (w *QueueStatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting queue stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping queue stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.collect(ctx)
		}
	}
}

func (w *QueueStatsWorker) collect(ctx context.Context) {
	if w.poolStats != nil {
		s := w.poolStats()
		metrics.SetDBPoolStats(s.Total, s.Idle, s.InUse)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	counts, err := w.jobs.CountByStatus(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("queue stats worker error")
		return
	}
	depth := map[string]int{
		string(model.LLMJobStatusPending):    0,
		string(model.LLMJobStatusProcessing): 0,
		string(model.LLMJobStatusDone):       0,
		string(model.LLMJobStatusFailed):     0,
	}
	for status, n := range counts {
		depth[string(status)] = n
	}
	metrics.SetQueueDepth(depth)
	if depth[string(model.LLMJobStatusFailed)] > 0 {
		w.log.Debug().Int("failed", depth[string(model.LLMJobStatusFailed)]).Msg("failed jobs waiting for retry")
	}
}
