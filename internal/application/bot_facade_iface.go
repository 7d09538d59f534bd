package application

import (
	"context"

	"veritheo-bot/internal/domain/model"
)

// ---- small interfaces to decouple the facade from concrete infra types ----

// Translator renders a localized message key.
type Translator interface {
	T(key string, args ...interface{}) string
}

// QueueStats is the read side of the job queue used by admin commands.
type QueueStats interface {
	CountByStatus(ctx context.Context) (map[model.LLMJobStatus]int, error)
}
