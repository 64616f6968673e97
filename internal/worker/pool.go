// Package worker runs DNS request handling on a bounded pool of goroutines.
// The listener loops (internal/listener) never do more than read a datagram
// or accept a connection before handing off here, so a query flood backs up
// in this pool's queue instead of stalling the sockets.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolClosed is returned when submitting to a pool after Close.
	ErrPoolClosed = errors.New("worker: pool closed")

	// ErrQueueFull is returned by SubmitAsync when every queue slot is
	// taken. For a UDP request the right reaction is to drop the datagram;
	// the client will retry.
	ErrQueueFull = errors.New("worker: queue full")
)

// Job is one unit of request handling, typically the whole
// decode/resolve/encode/write cycle for a single DNS message.
type Job interface {
	Execute(ctx context.Context) error
}

// JobFunc adapts a bare function to the Job interface.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Execute(ctx context.Context) error { return f(ctx) }

// Config sizes a Pool.
type Config struct {
	// Workers is the number of goroutines handling requests. Anything
	// below 1 is raised to 1.
	Workers int

	// QueueSize bounds how many requests may wait for a free worker.
	// Defaults to Workers * 64.
	QueueSize int

	// PanicHandler, when set, observes the recovered value of a job that
	// panicked. The worker goroutine survives either way; the panic is
	// counted as a failed job.
	PanicHandler func(any)
}

type task struct {
	job  Job
	ctx  context.Context
	done chan error // buffered size 1; nil for fire-and-forget submissions
}

// Pool is a fixed-size worker pool over a bounded queue. One Pool serves
// both the UDP and TCP listeners for the process lifetime.
type Pool struct {
	queue        chan task
	workers      int
	queueSize    int
	panicHandler func(any)

	closed atomic.Bool
	wg     sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// NewPool starts cfg.Workers goroutines and returns the running pool.
func NewPool(cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 64
	}

	p := &Pool{
		queue:        make(chan task, cfg.QueueSize),
		workers:      cfg.Workers,
		queueSize:    cfg.QueueSize,
		panicHandler: cfg.PanicHandler,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.work()
	}

	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(t)
	}
}

// run executes one task, isolating panics to the job that raised them.
func (p *Pool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			p.failed.Add(1)
			if t.done != nil {
				t.done <- errors.New("worker: job panicked")
			}
		}
	}()

	err := t.job.Execute(t.ctx)
	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	if t.done != nil {
		t.done <- err
	}
}

// Submit queues job and blocks until it has run, returning the job's own
// error. ctx bounds both the wait for a queue slot and the wait for the
// result.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	t := task{job: job, ctx: ctx, done: make(chan error, 1)}

	select {
	case p.queue <- t:
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAsync queues job without waiting for it to run. When the queue is
// full the job is rejected immediately with ErrQueueFull rather than
// blocking the caller, which on the listener side is the accept loop.
func (p *Pool) SubmitAsync(ctx context.Context, job Job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	select {
	case p.queue <- task{job: job, ctx: ctx}:
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting new jobs and waits for every queued job to finish.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return ErrPoolClosed
	}
	close(p.queue)
	p.wg.Wait()
	return nil
}

// QueueDepth reports how many jobs are waiting for a worker right now.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Stats is a point-in-time snapshot of the pool's counters.
type Stats struct {
	Workers    int
	QueueSize  int
	QueueDepth int
	Submitted  uint64
	Completed  uint64
	Failed     uint64
	Rejected   uint64
}

// GetStats snapshots the pool's counters for the periodic stats printer.
func (p *Pool) GetStats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
	}
}
