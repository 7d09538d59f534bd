package redis

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLeaseHeld means another process owns the lease.
var ErrLeaseHeld = errors.New("lease held by another instance")

// Lease is a token-guarded key with a TTL. The queue worker holds one so a
// second bot process pointed at the same database does not run its own loop.
type Lease struct {
	cli   *redis.Client
	key   string
	ttl   time.Duration
	token string
}

func NewLease(c *redClient, key string, ttl time.Duration) *Lease {
	return &Lease{cli: c.cli, key: key, ttl: ttl}
}

// Acquire takes the lease, waiting up to about one second for a previous
// holder that is shutting down to release it.
func (l *Lease) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 400 * time.Millisecond
	b.MaxElapsedTime = time.Second

	err := backoff.Retry(func() error {
		ok, err := l.cli.SetNX(ctx, l.key, token, l.ttl).Result()
		switch {
		case err != nil:
			return backoff.Permanent(err)
		case !ok:
			return ErrLeaseHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	l.token = token
	return nil
}

var luaExtend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Keep extends the lease every ttl/3 until ctx ends. It returns ErrLeaseHeld
// when the lease was lost.
func (l *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := luaExtend.Run(ctx, l.cli, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if n == 0 {
				return ErrLeaseHeld
			}
		}
	}
}

func (l *Lease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := luaUnlock.Run(ctx, l.cli, []string{l.key}, l.token).Result()
	return err
}
