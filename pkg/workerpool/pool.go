// Package workerpool runs tasks on a fixed number of goroutines.
//
// Broadcasts use it to bound how many Telegram sends are in flight:
//
//	pool := workerpool.New(8, workerpool.WithPanicHandler(logPanic))
//	for _, id := range users {
//	    if err := pool.SubmitWait(ctx, send(id)); err != nil {
//	        break
//	    }
//	}
//	pool.Shutdown() // waits for queued sends
package workerpool

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolFull is returned by Submit when every worker is busy and the
// queue is at capacity.
var ErrPoolFull = errors.New("workerpool: pool is full")

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("workerpool: pool is closed")

// Option configures a Pool.
type Option func(*Pool)

// WithPanicHandler is called with the recovered value when a task panics.
func WithPanicHandler(fn func(any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// WithQueueSize overrides the default queue of twice the worker count.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.queue = n
		}
	}
}

// Pool is a bounded goroutine pool.
type Pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	once    sync.Once
	queue   int
	onPanic func(any)

	mu     sync.RWMutex
	closed bool
}

// New starts size workers. A size below one is treated as one.
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = 1
	}

	p := &Pool{queue: size * 2}
	for _, opt := range opts {
		opt(p)
	}
	p.tasks = make(chan func(), p.queue)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// SubmitWait blocks until task is queued or ctx is done.
func (p *Pool) SubmitWait(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run keeps a panicking task from taking the worker down with it.
func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	task()
}
