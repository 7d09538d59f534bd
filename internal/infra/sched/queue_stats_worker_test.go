//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/infra/db"
)

type countingJobs struct {
	calls atomic.Int32
	err   error
}

func (c *countingJobs) CountByStatus(ctx context.Context) (map[model.LLMJobStatus]int, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a bounded context")
	}
	return map[model.LLMJobStatus]int{model.LLMJobStatusPending: 3}, c.err
}

func TestQueueStatsWorker_Run(t *testing.T) {
	l := zerolog.New(io.Discard)
	jobs := &countingJobs{}
	var poolReads atomic.Int32
	w := NewQueueStatsWorker(10*time.Millisecond, jobs, func() db.PoolStats {
		poolReads.Add(1)
		return db.PoolStats{Total: 4, Idle: 3, InUse: 1}
	}, &l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for jobs.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if jobs.calls.Load() < 3 || poolReads.Load() < 3 {
		t.Fatalf("expected repeated collection, got %d counts and %d pool reads", jobs.calls.Load(), poolReads.Load())
	}
}

func TestQueueStatsWorker_ToleratesErrors(t *testing.T) {
	l := zerolog.New(io.Discard)
	jobs := &countingJobs{err: errors.New("db down")}
	w := NewQueueStatsWorker(time.Hour, jobs, nil, &l)

	// a failing store must not panic nor stop collection
	w.collect(context.Background())
	w.collect(context.Background())
	if jobs.calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", jobs.calls.Load())
	}
}
