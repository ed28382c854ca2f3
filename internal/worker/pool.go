// Package worker runs blocking store calls off the chat event goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker: pool closed")

// Job is one unit of work. It receives the context passed to Submit.
type Job func(ctx context.Context)

// Pool bounds how many jobs run at once.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a pool running at most size jobs concurrently.
func New(size int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	logger.Info().Int("size", size).Msg("starting worker pool")
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger,
	}
}

// Size is the concurrency limit.
func (p *Pool) Size() int { return p.size }

// Submit waits for a free slot, then runs job on its own goroutine. It
// returns ctx.Err() if no slot frees up before ctx ends, and ErrClosed once
// the pool is closing. A panicking job is logged and does not take the
// process down.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if p.isClosed() {
		return ErrClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker: waiting for slot: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("job panicked")
			}
		}()
		job(ctx)
	}()
	return nil
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops accepting jobs and waits for running ones until ctx ends.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.logger.Info().Msg("shutting down worker pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: jobs still running: %w", ctx.Err())
	}
}
