package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PoolStats is a snapshot of scheduled run accounting.
type PoolStats struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
	Deferred  int64 `json:"deferred"`
}

var (
	errPoolFull     = errors.New("run pool is full")
	errPoolShutdown = errors.New("run pool is shut down")
)

// runPool bounds how many scheduled runs execute at once. Submissions never
// block: a full pool rejects the run so the tick loop stays on schedule.
type runPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	active, completed, failed, panics, deferred atomic.Int64
}

func newRunPool(size int) *runPool {
	if size <= 0 {
		size = 1
	}
	return &runPool{sem: make(chan struct{}, size)}
}

// trySubmit starts fn if a slot is free. It returns errPoolFull when every
// slot is busy and errPoolShutdown after shutdown.
func (p *runPool) trySubmit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errPoolShutdown
	}
	select {
	case p.sem <- struct{}{}:
	default:
		p.mu.Unlock()
		p.deferred.Add(1)
		return errPoolFull
	}
	// wg.Add must happen under the lock so shutdown's Wait sees it.
	p.wg.Add(1)
	p.active.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.failed.Add(1)
			}
			p.active.Add(-1)
			<-p.sem
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			p.failed.Add(1)
			return
		}
		p.completed.Add(1)
	}()
	return nil
}

// shutdown rejects new work and waits for running work to finish.
func (p *runPool) shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// reopen accepts work again after shutdown.
func (p *runPool) reopen() {
	p.mu.Lock()
	p.closed = false
	p.mu.Unlock()
}

func (p *runPool) stats() PoolStats {
	return PoolStats{
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
		Deferred:  p.deferred.Load(),
	}
}
