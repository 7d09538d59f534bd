package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/infra/metrics"
)

var _ repository.HeresyRepository = (*HeresyCache)(nil)

// HeresyCache is a read-through cache in front of the heresy_cache table.
// Redis errors fall back to the wrapped repository.
type HeresyCache struct {
	client RedisClient
	next   repository.HeresyRepository
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewHeresyCache(client RedisClient, next repository.HeresyRepository, ttl time.Duration, logger *zerolog.Logger) *HeresyCache {
	l := logger.With().Str("component", "HeresyCache").Logger()
	return &HeresyCache{client: client, next: next, ttl: ttl, log: &l}
}

func heresyKey(chatID, userID int64) string {
	return fmt.Sprintf("heresy:%d:%d", chatID, userID)
}

func (c *HeresyCache) Latest(ctx context.Context, chatID, userID int64) (*model.HeresyEntry, error) {
	key := heresyKey(chatID, userID)
	data, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		var e model.HeresyEntry
		if jErr := json.Unmarshal([]byte(data), &e); jErr == nil {
			metrics.IncCacheRequest("heresy", metrics.CacheHit)
			return &e, nil
		}
		c.log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		_ = c.client.Del(ctx, key)
		metrics.IncCacheRequest("heresy", metrics.CacheError)
	case errors.Is(err, ErrMiss):
		metrics.IncCacheRequest("heresy", metrics.CacheMiss)
	default:
		metrics.IncCacheRequest("heresy", metrics.CacheError)
		c.log.Warn().Err(err).Msg("heresy cache read failed")
	}

	e, err := c.next.Latest(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, e)
	return e, nil
}

func (c *HeresyCache) Save(ctx context.Context, e *model.HeresyEntry) error {
	if err := c.next.Save(ctx, e); err != nil {
		return err
	}
	c.store(ctx, e)
	return nil
}

func (c *HeresyCache) store(ctx context.Context, e *model.HeresyEntry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, heresyKey(e.ChatID, e.UserID), data, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("heresy cache write failed")
	}
}
