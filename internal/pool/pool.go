// Package pool runs deferred work with a fixed ceiling on how many units are
// in flight at once.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// Pool admits work units in submission order and never runs more than its
// limit concurrently. Units that cannot start immediately wait in a FIFO
// queue. A failing unit never affects its siblings.
type Pool struct {
	mu      sync.Mutex
	limit   int
	running int
	queue   []func()
}

// New creates a pool. A limit below 1 is treated as 1.
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Limit returns the configured concurrency ceiling.
func (p *Pool) Limit() int {
	return p.limit
}

// Running returns the number of units currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queued returns the number of units waiting for a slot.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) enqueue(run func()) {
	p.mu.Lock()
	if p.running < p.limit {
		p.running++
		p.mu.Unlock()
		go p.exec(run)
		return
	}
	p.queue = append(p.queue, run)
	p.mu.Unlock()
}

// exec runs a unit and then keeps draining the queue on the same goroutine
// until no work is waiting.
func (p *Pool) exec(run func()) {
	for run != nil {
		run()

		p.mu.Lock()
		if len(p.queue) > 0 {
			run = p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
		} else {
			p.running--
			run = nil
		}
		p.mu.Unlock()
	}
}

// Future is the eventual outcome of one submitted unit.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the unit finishes or ctx is done. Cancelling ctx stops
// the wait only; the unit itself keeps running.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the unit has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit schedules fn on p and returns immediately. A panic inside fn is
// converted into an error on the returned future.
func Submit[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.enqueue(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("work unit panicked: %v", r)
			}
		}()
		f.value, f.err = fn()
	})
	return f
}

// Result pairs a unit's value with its error.
type Result[T any] struct {
	Value T
	Err   error
}

// Map submits fn once per item and returns outcomes indexed by submission
// position, whatever order the units complete in.
func Map[In, Out any](ctx context.Context, p *Pool, items []In, fn func(int, In) (Out, error)) []Result[Out] {
	futures := make([]*Future[Out], len(items))
	for i, item := range items {
		futures[i] = Submit(p, func() (Out, error) {
			return fn(i, item)
		})
	}

	results := make([]Result[Out], len(items))
	for i, f := range futures {
		v, err := f.Wait(ctx)
		results[i] = Result[Out]{Value: v, Err: err}
	}
	return results
}
