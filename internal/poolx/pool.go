// Package poolx bounds how many CPU-heavy key derivations run at once.
package poolx

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"golang.org/x/sync/semaphore"
)

// Pool admits at most Size concurrent jobs. A job that cannot get a slot
// within the queue wait is rejected with common.ErrBusy instead of piling up.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
	wait time.Duration
}

// New returns a pool of size slots; size <= 0 means GOMAXPROCS.
func New(size int, queueWait time.Duration) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size), wait: queueWait}
}

// Do runs fn on the calling goroutine once a slot is free.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

func (p *Pool) acquire(ctx context.Context) error {
	if p.sem.TryAcquire(1) {
		return nil
	}
	if p.wait <= 0 {
		return common.ErrBusy
	}

	wctx, cancel := context.WithTimeout(ctx, p.wait)
	defer cancel()
	if err := p.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return common.ErrBusy
		}
		return err
	}
	return nil
}

// Size reports the number of slots.
func (p *Pool) Size() int { return int(p.size) }
