//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPool(t *testing.T) {
	nop := zerolog.Nop()

	t.Run("should not exceed its size", func(t *testing.T) {
		p := NewPool(2, &nop)
		p.Start(context.Background())

		var cur, peak int32
		for i := 0; i < 10; i++ {
			err := p.Submit(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&cur, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&cur, -1)
				return nil
			})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
		p.Stop()
		if peak > 2 {
			t.Fatalf("peak concurrency %d exceeds pool size", peak)
		}
	})

	t.Run("should survive a panicking task", func(t *testing.T) {
		p := NewPool(1, &nop)
		_ = p.Submit(context.Background(), func(context.Context) error { panic("boom") })
		ran := make(chan struct{})
		if err := p.Submit(context.Background(), func(context.Context) error { close(ran); return nil }); err != nil {
			t.Fatalf("Submit after panic: %v", err)
		}
		<-ran
		p.Stop()
	})

	t.Run("should give up when the caller's context ends", func(t *testing.T) {
		p := NewPool(1, &nop)
		release := make(chan struct{})
		_ = p.Submit(context.Background(), func(context.Context) error { <-release; return nil })

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := p.Submit(ctx, func(context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		close(release)
		p.Stop()
	})

	t.Run("should refuse tasks after Stop", func(t *testing.T) {
		p := NewPool(1, &nop)
		p.Stop()
		if err := p.Submit(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrPoolStopped) {
			t.Fatalf("expected ErrPoolStopped, got %v", err)
		}
	})

	t.Run("should run tasks under the started context", func(t *testing.T) {
		p := NewPool(1, &nop)
		type key struct{}
		p.Start(context.WithValue(context.Background(), key{}, "base"))
		got := make(chan any, 1)
		_ = p.Submit(context.Background(), func(ctx context.Context) error { got <- ctx.Value(key{}); return nil })
		p.Stop()
		if v := <-got; v != "base" {
			t.Fatalf("unexpected ctx value %v", v)
		}
	})
}
