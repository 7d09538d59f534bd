package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts hits per key in fixed windows. The window starts with the
// first hit and the counter expires with it.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow books one hit on key and reports whether it is within limit.
// limit <= 0 disables the check.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	n, err := r.client.IncrWindow(ctx, key, window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return n <= int64(limit), nil
}

// UserCommandKey scopes a counter to one user and one command.
func UserCommandKey(userID int64, command string) string {
	return fmt.Sprintf("veritheo:rl:%d:%s", userID, command)
}
