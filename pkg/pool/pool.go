// Package pool runs submitted functions on a fixed set of goroutines that
// pull from one FIFO queue.
package pool

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool: closed")

// Pool is a fixed-size worker pool. A Pool is safe for concurrent use.
//
// The queue, the active count and the closed flag are guarded by mu. Workers
// sleep on work; WaitIdle sleeps on idle, which is broadcast whenever the
// queue is empty and no job is running.
type Pool struct {
	mu     sync.Mutex
	work   *sync.Cond
	idle   *sync.Cond
	queue  []func()
	active int
	closed bool
	wg     sync.WaitGroup

	peak int // highest active count seen
}

// New starts workers goroutines. workers below 1 is treated as 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{}
	p.work = sync.NewCond(&p.mu)
	p.idle = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for !p.closed && len(p.queue) == 0 {
			p.work.Wait()
		}
		if len(p.queue) == 0 {
			// closed and drained
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.active++
		p.peak = max(p.peak, p.active)
		p.mu.Unlock()

		fn()

		p.mu.Lock()
		p.active--
		if p.active == 0 && len(p.queue) == 0 {
			p.idle.Broadcast()
		}
		p.mu.Unlock()
	}
}

// Submit queues fn and wakes one sleeping worker.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, fn)
	p.work.Signal()
	return nil
}

// WaitIdle blocks until the queue is empty and no job is running.
func (p *Pool) WaitIdle() {
	p.mu.Lock()
	for len(p.queue) > 0 || p.active > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// Close stops accepting jobs, lets the workers drain the queue and waits
// for every worker goroutine to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.work.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// Peak returns the highest number of jobs that ran at the same time.
func (p *Pool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}
