package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// workerPool runs submitted jobs on a fixed set of goroutines. A panicking
// job is logged and does not take its worker down.
type workerPool struct {
	jobs   chan func()
	size   int
	wg     sync.WaitGroup
	logger *zap.Logger
}

func newWorkerPool(size, queue int, logger *zap.Logger) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{jobs: make(chan func(), queue), size: size, logger: logger}
}

func (p *workerPool) start() {
	for i := range p.size {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for job := range p.jobs {
				func() {
					defer func() {
						if r := recover(); r != nil {
							p.logger.Error("scheduler worker panic", zap.Int("worker", workerID), zap.Any("panic", r))
						}
					}()
					job()
				}()
			}
		}(i)
	}
}

// submit blocks while the queue is full, or until ctx is done.
func (p *workerPool) submit(ctx context.Context, job func()) bool {
	select {
	case p.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// stop drains queued jobs and waits for the workers to exit.
func (p *workerPool) stop() {
	close(p.jobs)
	p.wg.Wait()
}
