package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/domain/similarity"
)

// Compile-time check
var _ GuardUseCase = (*guardUC)(nil)

// GuardUseCase decides whether a text is (close to) something the bot
// already sent in the chat.
type GuardUseCase interface {
	Check(ctx context.Context, chatID int64, prompt string) (similarity.Result, error)
}

type GuardConfig struct {
	Options  similarity.Options
	PageSize int
	MaxScan  int
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.PageSize <= 0 {
		c.PageSize = 200
	}
	if c.MaxScan <= 0 {
		c.MaxScan = 2000
	}
	return c
}

type guardUC struct {
	messages repository.MessageRepository
	cfg      GuardConfig
	log      *zerolog.Logger
}

func NewGuardUseCase(messages repository.MessageRepository, cfg GuardConfig, logger *zerolog.Logger) *guardUC {
	l := logger.With().Str("component", "GuardUseCase").Logger()
	return &guardUC{messages: messages, cfg: cfg.withDefaults(), log: &l}
}

func (g *guardUC) Check(ctx context.Context, chatID int64, prompt string) (similarity.Result, error) {
	m := similarity.NewMatcher(prompt, g.cfg.Options)
	if m.Empty() {
		return m.Result(), nil
	}

	scanned, offset := 0, 0
	for scanned < g.cfg.MaxScan {
		limit := max(1, min(g.cfg.PageSize, g.cfg.MaxScan-scanned))
		rows, err := g.messages.QueryRecentBotMessages(ctx, chatID, limit, offset)
		if err != nil {
			return similarity.Result{}, fmt.Errorf("guard: load bot messages: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		for _, r := range rows {
			if !r.HasText() {
				continue
			}
			if m.Observe(r.MessageID, r.Text) {
				res := m.Result()
				g.log.Debug().Int64("chat_id", chatID).Int("matched_message_id", res.MatchedMessageID).
					Str("reason", string(res.Reason)).Float64("similarity", res.Similarity).Msg("prompt matches a bot message")
				return res, nil
			}
		}
		scanned += len(rows)
		offset += len(rows)
		if len(rows) < limit {
			break
		}
	}
	return m.Result(), nil
}
