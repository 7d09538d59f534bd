package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Task is one unit of work run by a Pool.
type Task func(ctx context.Context) error

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs submitted tasks with at most size of them in flight. The
// Telegram adapter hands every update to one so a slow command does not
// hold up the rest.
type Pool struct {
	size int64
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
	log  *zerolog.Logger

	mu      sync.Mutex
	base    context.Context
	stopped bool
}

func NewPool(size int, logger *zerolog.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	l := logger.With().Str("component", "Pool").Logger()
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
		log:  &l,
		base: context.Background(),
	}
}

// Start sets the context tasks run under. Submitting before Start runs
// tasks under context.Background.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.base = ctx
	p.mu.Unlock()
}

// Submit blocks until a slot is free or ctx ends, then runs task on its own
// goroutine.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.sem.Release(1)
		return ErrPoolStopped
	}
	base := p.base
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		p.run(base, task)
	}()
	return nil
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn().Err(err).Msg("task error")
	}
}

// Stop refuses new tasks and waits for the running ones.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Size is the maximum number of tasks in flight.
func (p *Pool) Size() int { return int(p.size) }
