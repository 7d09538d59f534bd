// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"veritheo-bot/internal/application"
	"veritheo-bot/internal/config"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/domain/similarity"
	aiAdapters "veritheo-bot/internal/infra/adapters/ai"
	tele "veritheo-bot/internal/infra/adapters/telegram"
	"veritheo-bot/internal/infra/api"
	"veritheo-bot/internal/infra/api/apiv1"
	"veritheo-bot/internal/infra/db"
	"veritheo-bot/internal/infra/i18n"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/infra/metrics"
	"veritheo-bot/internal/infra/opslog"
	red "veritheo-bot/internal/infra/redis"
	"veritheo-bot/internal/infra/sched"
	"veritheo-bot/internal/infra/worker"
	"veritheo-bot/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

const (
	queueLeaseKey = "veritheo:queue-worker"
	queueLeaseTTL = 30 * time.Second
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop AI without keys)")
	dryRun := flag.Bool("dry-run", false, "process the queue without talking to Telegram")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, *dryRun, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, dryRun bool, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, cfg.Database.Driver)

	// ---- Storage ----
	stores, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer stores.Close()

	// ---- Telegram API ----
	var (
		botAPI *tgbotapi.BotAPI
		client *tele.Client
		chat   adapter.ChatClient
	)
	if dryRun {
		chat = tele.NewNoopClient(logger, cfg.Runtime.Dev)
	} else {
		botAPI, err = tele.NewAPI(cfg.Bot.Token)
		if err != nil {
			return err
		}
		client = tele.NewClient(botAPI, logger)
		chat = client
	}

	// ---- Ops notifications ----
	notifiers := opslog.Multi{opslog.NewLogNotifier(logger)}
	var commands tele.CommandLogger
	if cfg.OpsLog.ChannelID != "" && botAPI != nil {
		channel, err := opslog.NewChannelLogger(botAPI, cfg.OpsLog.ChannelID, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("ops channel disabled")
		} else {
			defer channel.Wait()
			notifiers = append(notifiers, channel)
			commands = channel
		}
	}
	if cfg.OpsLog.SentryDSN != "" {
		sn, err := opslog.NewSentryNotifier(sentry.ClientOptions{
			Dsn:         cfg.OpsLog.SentryDSN,
			Environment: cfg.OpsLog.Environment,
			Release:     version,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("sentry disabled")
		} else {
			defer sn.Flush(2 * time.Second)
			notifiers = append(notifiers, sn)
		}
	}

	// ---- Redis (optional) ----
	var (
		limiter    tele.Limiter
		lease      *red.Lease
		heresyRepo repository.HeresyRepository = stores.Heresy
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		limiter = red.NewRateLimiter(rc)
		heresyRepo = red.NewHeresyCache(rc, stores.Heresy, cfg.Heresy.CacheTTL, logger)
		lease = red.NewLease(rc, queueLeaseKey, queueLeaseTTL)
	}

	// ---- AI ----
	tokenizer := aiAdapters.NewTokenizer()
	ai, err := buildAI(ctx, cfg, tokenizer, logger)
	if err != nil {
		return err
	}

	// ---- Usecases ----
	replyUC := usecase.NewReplyUseCase(chat, stores.Messages, usecase.NewSummarizer(ai, cfg.AI.SummarizeModel), logger)
	heresyUC := usecase.NewHeresyUseCase(stores.Messages, heresyRepo, usecase.HeresyConfig{
		CacheTTL:    cfg.Heresy.CacheTTL,
		Lookback:    cfg.Heresy.Lookback,
		MinMessages: cfg.Heresy.MinMessages,
		MinLength:   cfg.Heresy.MinLength,
		MaxMessages: cfg.Heresy.MaxMessages,
	}, logger)
	guardUC := usecase.NewGuardUseCase(stores.Messages, usecase.GuardConfig{
		Options: similarity.Options{
			Threshold:                     cfg.Guard.Threshold,
			ContainmentThreshold:          cfg.Guard.ContainmentThreshold,
			MinPromptTokensForContainment: cfg.Guard.MinPromptTokensForContainment,
			MinSubstringLength:            cfg.Guard.MinSubstringLength,
		},
		PageSize: cfg.Guard.PageSize,
		MaxScan:  cfg.Guard.MaxScan,
	}, logger)

	// ---- Queue ----
	handler := worker.NewJobHandler(ai, replyUC, heresyUC, chat, tokenizer, worker.HandlerConfig{
		Models:           kindModels(cfg.AI.Models, logger),
		DefaultModel:     cfg.AI.DefaultModel,
		MaxContextTokens: cfg.AI.MaxContextTokens,
		MaxOutputTokens:  cfg.AI.MaxOutputTokens,
	}, logger)
	queueWorker := worker.NewQueueWorker(stores.Jobs, handler, chat, notifiers, worker.Config{
		MaxConcurrentJobs: cfg.Queue.MaxConcurrentJobs,
		PollInterval:      cfg.Queue.PollInterval,
		MaxAttempts:       cfg.Queue.MaxAttempts,
		JobTimeout:        cfg.Queue.JobTimeout,
	}, logger)
	queueUC := usecase.NewQueueUseCase(stores.Jobs, queueWorker, logger)

	// ---- Telegram bot ----
	var bot *tele.RealTelegramBotAdapter
	if botAPI != nil {
		tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
		if err != nil {
			return fmt.Errorf("i18n: %w", err)
		}
		facade := application.NewBotFacade(queueUC, guardUC, heresyUC, stores.Messages, stores.Jobs, tr, application.FacadeOptions{
			UntouchableIDs: cfg.Bot.UntouchableIDs,
		}, logger)
		bot, err = tele.NewRealTelegramBotAdapter(cfg.Bot, tele.Deps{
			API:      botAPI,
			Client:   client,
			Facade:   facade,
			Messages: stores.Messages,
			Tr:       tr,
			Notifier: notifiers,
			Limiter:  limiter,
			Commands: commands,
			Dev:      cfg.Runtime.Dev,
		}, logger)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runQueueWorker(ctx, queueWorker, lease, logger) })
	g.Go(func() error {
		return sched.NewQueueStatsWorker(cfg.Scheduler.QueueStatsInterval, stores.Jobs, stores.Stats, logger).Run(ctx)
	})

	if bot != nil {
		g.Go(func() error { return bot.StartPolling(ctx) })
	} else {
		logger.Warn().Msg("dry run: Telegram polling disabled")
	}

	// ---- Admin API ----
	if cfg.Admin.Port > 0 {
		srv := api.NewServer(cfg.Admin, apiv1.NewServer(stores.Jobs, queueWorker, logger), stores.Ping, logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info().
		Str("version", version).
		Str("db", stores.Driver).
		Bool("redis", cfg.Redis.URL != "").
		Bool("dry_run", dryRun).
		Msg("bot started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runQueueWorker runs w, gated by lease when one is configured. An instance
// that finds the lease taken stays on standby and retries every lease TTL, so
// it takes over when the holder dies.
func runQueueWorker(ctx context.Context, w *worker.QueueWorker, lease *red.Lease, logger *zerolog.Logger) error {
	if lease == nil {
		return w.Run(ctx)
	}
	for {
		err := lease.Acquire(ctx)
		switch {
		case errors.Is(err, red.ErrLeaseHeld):
			logger.Info().Str("key", queueLeaseKey).Msg("queue worker lease held elsewhere, standing by")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(queueLeaseTTL):
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("queue worker lease: %w", err)
		}

		err = runLeased(ctx, w, lease, logger)
		if !errors.Is(err, red.ErrLeaseHeld) {
			return err
		}
		logger.Warn().Str("key", queueLeaseKey).Msg("queue worker lease lost")
	}
}

func runLeased(ctx context.Context, w *worker.QueueWorker, lease *red.Lease, logger *zerolog.Logger) error {
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warn().Err(err).Msg("release queue worker lease")
		}
	}()
	logger.Info().Str("key", queueLeaseKey).Msg("queue worker lease acquired")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lease.Keep(gctx) })
	g.Go(func() error { return w.Run(gctx) })
	return g.Wait()
}

// buildAI assembles the provider chain: multi-provider routing, optional
// fallback model, then a global concurrency cap.
func buildAI(ctx context.Context, cfg *config.Config, tokenizer *aiAdapters.Tokenizer, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	providers := map[string]adapter.AIServiceAdapter{}
	defaultProvider := ""

	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.FallbackModel, cfg.AI.MaxOutputTokens, tokenizer)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		providers["openai"] = oa
		defaultProvider = "openai"
	}
	if cfg.AI.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		providers["gemini"] = gm
		defaultProvider = "gemini"
	}
	if len(providers) == 0 {
		if !cfg.Runtime.Dev {
			return nil, errors.New("no AI provider configured: set ai.gemini_key or ai.openai_key")
		}
		logger.Warn().Msg("no AI keys, using noop AI adapter")
		providers["noop"] = aiAdapters.NewNoopAIAdapter(logger)
		defaultProvider = "noop"
	}

	var ai adapter.AIServiceAdapter = aiAdapters.NewMultiAIAdapter(defaultProvider, providers, cfg.AI.ModelProviders)
	if cfg.AI.FallbackModel != "" && cfg.AI.FallbackModel != cfg.AI.DefaultModel {
		ai = aiAdapters.NewFallbackAdapter(ai, cfg.AI.FallbackModel, logger)
	}
	return aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit), nil
}

func kindModels(raw map[string]string, logger *zerolog.Logger) map[model.LLMJobKind]string {
	out := make(map[model.LLMJobKind]string, len(raw))
	for k, m := range raw {
		kind, err := model.ParseLLMJobKind(k)
		if err != nil {
			logger.Warn().Str("kind", k).Msg("ignoring model for unknown job kind")
			continue
		}
		out[kind] = m
	}
	return out
}
