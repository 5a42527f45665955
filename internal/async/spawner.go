package async

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Spawner dispatches fire-and-forget tasks. Unlike bare `go` statements,
// a Spawner can be drained so the host process does not exit with pipeline
// runs still in flight.
type Spawner interface {
	Spawn(task func()) error
	// Drain blocks until all spawned tasks finish or ctx is done.
	Drain(ctx context.Context) error
}

// Pool is an ants-backed Spawner. Panics inside tasks are recovered and
// logged so one job cannot take down its siblings.
type Pool struct {
	pool   *ants.Pool
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ Spawner = (*Pool)(nil)

func NewPool(size int, logger *slog.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{logger: logger}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		logger.Error("async.task.panic", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

func (p *Pool) Spawn(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("async.spawn.rejected", "reason", "pool draining")
		return ants.ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	err := p.pool.Submit(func() {
		defer p.wg.Done()
		task()
	})
	if err != nil {
		p.wg.Done()
		p.logger.Error("async.spawn.failed", "error", err)
		return err
	}
	return nil
}

// Drain waits for in-flight tasks and releases the pool. Further Spawn calls
// are rejected. Safe to call more than once.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("async.drain.interrupted", "error", ctx.Err())
		return ctx.Err()
	case <-done:
		if !alreadyClosed {
			p.pool.Release()
			p.logger.Info("async.drain.complete")
		}
		return nil
	}
}
