package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
)

var ErrInsufficientMaterial = errors.New("not enough messages to evaluate")

// Compile-time check
var _ HeresyUseCase = (*heresyUC)(nil)

type HeresyUseCase interface {
	// Cached returns a verdict still inside the cache TTL, or nil.
	Cached(ctx context.Context, chatID, userID int64) (*model.HeresyEntry, error)
	// Material returns the user's messages to analyze or ErrInsufficientMaterial.
	Material(ctx context.Context, chatID, userID int64) ([]string, error)
	Save(ctx context.Context, chatID, userID int64, response string) error
}

type HeresyConfig struct {
	CacheTTL    time.Duration
	Lookback    time.Duration
	MinMessages int
	MinLength   int
	MaxMessages int
}

func (c HeresyConfig) withDefaults() HeresyConfig {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * 24 * time.Hour
	}
	if c.Lookback <= 0 {
		c.Lookback = 365 * 24 * time.Hour
	}
	if c.MinMessages <= 0 {
		c.MinMessages = 3
	}
	if c.MinLength <= 0 {
		c.MinLength = 100
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 50
	}
	return c
}

type heresyUC struct {
	messages repository.MessageRepository
	cache    repository.HeresyRepository
	cfg      HeresyConfig
	now      func() time.Time
	log      *zerolog.Logger
}

func NewHeresyUseCase(messages repository.MessageRepository, cache repository.HeresyRepository, cfg HeresyConfig, logger *zerolog.Logger) *heresyUC {
	l := logger.With().Str("component", "HeresyUseCase").Logger()
	return &heresyUC{messages: messages, cache: cache, cfg: cfg.withDefaults(), now: time.Now, log: &l}
}

func (h *heresyUC) Cached(ctx context.Context, chatID, userID int64) (*model.HeresyEntry, error) {
	e, err := h.cache.Latest(ctx, chatID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("heresy cache lookup: %w", err)
	}
	if !e.Fresh(h.now(), h.cfg.CacheTTL) {
		return nil, nil
	}
	return e, nil
}

func (h *heresyUC) Material(ctx context.Context, chatID, userID int64) ([]string, error) {
	since := h.now().Add(-h.cfg.Lookback)
	recs, err := h.messages.UserMessagesSince(ctx, chatID, userID, since, h.cfg.MinLength, h.cfg.MaxMessages)
	if err != nil {
		return nil, fmt.Errorf("load user messages: %w", err)
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.HasText() {
			out = append(out, r.Text)
		}
	}
	if len(out) < h.cfg.MinMessages {
		return nil, ErrInsufficientMaterial
	}
	return out, nil
}

func (h *heresyUC) Save(ctx context.Context, chatID, userID int64, response string) error {
	entry := &model.HeresyEntry{ChatID: chatID, UserID: userID, CreatedAt: h.now().Truncate(time.Second), Response: response}
	if err := h.cache.Save(ctx, entry); err != nil {
		return fmt.Errorf("save heresy verdict: %w", err)
	}
	return nil
}
