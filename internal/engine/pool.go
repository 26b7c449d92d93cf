package engine

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs effect recomputes on a fixed number of worker goroutines so the
// command path never waits on DSP work.
type Pool struct {
	jobs    chan func()
	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts n workers. n <= 0 uses one worker per CPU.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan func(), 64)}
	p.workers.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.workers.Done()
			for job := range p.jobs {
				job()
				p.pending.Done()
			}
		}()
	}
	return p
}

// Submit queues job. It blocks only when the queue is full.
func (p *Pool) Submit(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.pending.Add(1)
	p.jobs <- job
	return nil
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close stops accepting jobs, lets queued jobs finish and stops the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.workers.Wait()
}
