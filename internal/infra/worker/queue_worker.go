package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/infra/metrics"
)

// DefaultFailureNotice is sent to the chat when a job is given up on.
const DefaultFailureNotice = "Lo siento, ha ocurrido un error mientras procesaba tu solicitud. Por favor, inténtalo de nuevo más tarde."

const storeTimeout = 10 * time.Second

// Handler executes one claimed job.
type Handler interface {
	Handle(ctx context.Context, job *model.LLMJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *model.LLMJob) error

func (f HandlerFunc) Handle(ctx context.Context, job *model.LLMJob) error { return f(ctx, job) }

type Config struct {
	MaxConcurrentJobs int
	PollInterval      time.Duration
	MaxAttempts       int
	JobTimeout        time.Duration
	FailureNotice     string
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 3 * time.Minute
	}
	if c.FailureNotice == "" {
		c.FailureNotice = DefaultFailureNotice
	}
	return c
}

type jobResult struct {
	id     int64
	chatID int64
}

// QueueWorker claims jobs from the store and runs them with bounded
// concurrency, never two jobs of the same chat at once.
//
// activeJobs and activeKeys are only touched by the goroutine running Run.
type QueueWorker struct {
	jobs     repository.LLMJobRepository
	handler  Handler
	chat     adapter.ChatClient
	notifier adapter.ErrorNotifier
	cfg      Config
	log      *zerolog.Logger

	wake chan struct{}
	done chan jobResult

	activeJobs map[int64]struct{}
	activeKeys map[int64]struct{}
}

func NewQueueWorker(
	jobs repository.LLMJobRepository,
	handler Handler,
	chat adapter.ChatClient,
	notifier adapter.ErrorNotifier,
	cfg Config,
	logger *zerolog.Logger,
) *QueueWorker {
	cfg = cfg.withDefaults()
	l := logger.With().Str("component", "QueueWorker").Logger()
	return &QueueWorker{
		jobs:       jobs,
		handler:    handler,
		chat:       chat,
		notifier:   notifier,
		cfg:        cfg,
		log:        &l,
		wake:       make(chan struct{}, 1),
		done:       make(chan jobResult, cfg.MaxConcurrentJobs),
		activeJobs: make(map[int64]struct{}),
		activeKeys: make(map[int64]struct{}),
	}
}

// Notify asks the loop for an early tick. It never blocks.
func (w *QueueWorker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run recovers orphaned jobs, then claims and dispatches until ctx is
// cancelled. On return every job it started has finished.
func (w *QueueWorker) Run(ctx context.Context) error {
	n, err := w.jobs.RequeueOrphaned(ctx)
	if err != nil {
		return fmt.Errorf("requeue orphaned jobs: %w", err)
	}
	if n > 0 {
		metrics.AddOrphansRequeued(n)
		w.log.Warn().Int("count", n).Msg("requeued orphaned jobs")
	}

	w.log.Info().
		Int("max_concurrent_jobs", w.cfg.MaxConcurrentJobs).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("queue worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Int("in_flight", len(w.activeJobs)).Msg("queue worker stopping")
			w.drain()
			return nil
		case <-ticker.C:
		case <-w.wake:
		case res := <-w.done:
			w.release(res)
		}
		w.tick(ctx)
	}
}

// tick fills free slots with claimable jobs.
func (w *QueueWorker) tick(ctx context.Context) {
	for len(w.activeJobs) < w.cfg.MaxConcurrentJobs {
		if ctx.Err() != nil {
			return
		}
		job, err := w.jobs.ClaimNext(ctx, w.excludedChats())
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("failed to claim job")
			}
			return
		}
		if job == nil {
			return
		}
		w.activeJobs[job.ID] = struct{}{}
		w.activeKeys[job.ChatID] = struct{}{}
		metrics.IncJobClaimed(string(job.Kind))
		metrics.SetJobsActive(len(w.activeJobs))
		go w.execute(ctx, job)
	}
}

func (w *QueueWorker) excludedChats() []int64 {
	if len(w.activeKeys) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(w.activeKeys))
	for id := range w.activeKeys {
		ids = append(ids, id)
	}
	return ids
}

func (w *QueueWorker) release(res jobResult) {
	delete(w.activeJobs, res.id)
	delete(w.activeKeys, res.chatID)
	metrics.SetJobsActive(len(w.activeJobs))
}

func (w *QueueWorker) drain() {
	for len(w.activeJobs) > 0 {
		w.release(<-w.done)
	}
}

func (w *QueueWorker) execute(ctx context.Context, job *model.LLMJob) {
	defer func() { w.done <- jobResult{id: job.ID, chatID: job.ChatID} }()

	jobCtx := logging.WithJobID(logging.WithChatID(ctx, job.ChatID), job.ID)
	log := logging.With(jobCtx, w.log).With().Str("kind", string(job.Kind)).Int("attempt", job.Attempts).Logger()
	log.Info().Msg("processing job")

	start := time.Now()
	err := w.run(jobCtx, job)
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		// Left in processing; recovered by RequeueOrphaned on the next start.
		log.Warn().Err(err).Msg("job interrupted by shutdown")
		return
	}
	w.settle(jobCtx, &log, job, err, elapsed)
}

func (w *QueueWorker) run(ctx context.Context, job *model.LLMJob) (err error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}

func (w *QueueWorker) settle(ctx context.Context, log *zerolog.Logger, job *model.LLMJob, err error, elapsed time.Duration) {
	storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	kind := string(job.Kind)
	switch {
	case err == nil:
		if mErr := w.jobs.MarkDone(storeCtx, job.ID); mErr != nil {
			log.Error().Err(mErr).Msg("failed to mark job done")
		}
		metrics.ObserveJobFinished(kind, metrics.JobOutcomeDone, elapsed)
		log.Info().Dur("duration", elapsed).Msg("job done")
		return

	case errors.Is(err, domain.ErrDelivery):
		if mErr := w.jobs.MarkDone(storeCtx, job.ID); mErr != nil {
			log.Error().Err(mErr).Msg("failed to mark job done")
		}
		metrics.ObserveJobFinished(kind, metrics.JobOutcomeDeliveryError, elapsed)
		log.Error().Err(err).Msg("job result could not be delivered")
		w.notify(ctx, fmt.Sprintf("LLM queue delivery failed (jobId=%d, kind=%s, chatId=%d)", job.ID, job.Kind, job.ChatID), err)
		return
	}

	maxAttempts := w.cfg.MaxAttempts
	if errors.Is(err, domain.ErrPermanent) {
		maxAttempts = job.Attempts
	}
	status, mErr := w.jobs.MarkFailed(storeCtx, job.ID, err.Error(), maxAttempts)
	if mErr != nil {
		log.Error().Err(mErr).AnErr("job_error", err).Msg("failed to record job failure")
		return
	}

	if status != model.LLMJobStatusFailed {
		metrics.ObserveJobFinished(kind, metrics.JobOutcomeRetried, elapsed)
		log.Warn().Err(err).Dur("retry_in", model.RetryDelay(job.Attempts)).Msg("job failed, retry scheduled")
		return
	}

	metrics.ObserveJobFinished(kind, metrics.JobOutcomeFailed, elapsed)
	log.Error().Err(err).Msg("job failed permanently")

	w.sendFailureNotice(storeCtx, log, job)
	w.notify(ctx, fmt.Sprintf("LLM queue job failed (jobId=%d, kind=%s, chatId=%d, attempts=%d)", job.ID, job.Kind, job.ChatID, job.Attempts), err)
}

func (w *QueueWorker) sendFailureNotice(ctx context.Context, log *zerolog.Logger, job *model.LLMJob) {
	if w.chat == nil {
		return
	}
	if _, err := w.chat.SendMessage(ctx, adapter.OutgoingMessage{
		ChatID:           job.ChatID,
		Text:             w.cfg.FailureNotice,
		ReplyToMessageID: job.RequestMessageID,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to send failure notice")
	}
}

func (w *QueueWorker) notify(ctx context.Context, summary string, err error) {
	if w.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("notifier panicked")
		}
	}()
	w.notifier.Notify(context.WithoutCancel(ctx), summary, err)
}
