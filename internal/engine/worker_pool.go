package engine

import (
	"context"
	"sync"
)

// job is the unit of work dispatched to a worker.
type job[T, R any] struct {
	payload T
	result  chan<- jobResult[T, R]
}

type jobResult[T, R any] struct {
	payload T
	value   R
	err     error
}

// workerPool is a fixed-size goroutine pool with a bounded input queue. Each
// goroutine owns one state value for its whole life, so process never shares
// a state between goroutines.
type workerPool[S, T, R any] struct {
	queue   chan job[T, R]
	process func(ctx context.Context, s S, t T) (R, error)
	wg      sync.WaitGroup
}

// newWorkerPool starts one goroutine per state with queue capacity cap.
// Workers run until the queue is drained; process is expected to observe ctx.
func newWorkerPool[S, T, R any](ctx context.Context, states []S, cap int, fn func(context.Context, S, T) (R, error)) *workerPool[S, T, R] {
	p := &workerPool[S, T, R]{
		queue:   make(chan job[T, R], cap),
		process: fn,
	}
	for _, s := range states {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx, s)
		}()
	}
	return p
}

func (p *workerPool[S, T, R]) run(ctx context.Context, s S) {
	for j := range p.queue {
		v, err := p.process(ctx, s, j.payload)
		if j.result != nil {
			j.result <- jobResult[T, R]{payload: j.payload, value: v, err: err}
		}
	}
}

// Enqueue blocks until the job is queued.
func (p *workerPool[S, T, R]) Enqueue(t T, result chan<- jobResult[T, R]) {
	p.queue <- job[T, R]{payload: t, result: result}
}

// Drain closes the queue and waits for all workers to finish.
func (p *workerPool[S, T, R]) Drain() {
	close(p.queue)
	p.wg.Wait()
}

// QueueLen returns how many jobs are currently queued.
func (p *workerPool[S, T, R]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *workerPool[S, T, R]) QueueCap() int {
	return cap(p.queue)
}
