// Package worker runs detached units of work on a fixed set of goroutines.
// Each submitted Job yields a Future the caller may wait on or abandon.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Common errors returned by the pool.
var (
	ErrClosed    = errors.New("worker: pool closed")
	ErrQueueFull = errors.New("worker: queue full")
)

// Job is a unit of work. ctx is cancelled when the pool is closed with
// Abort or when the submitter's Future is cancelled.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Future is the pending result of a Job.
type Future struct {
	name   string
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Done is closed when the job has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job finishes or ctx is done.
// Abandoning the wait does not stop the job.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the job's error once Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Cancel asks the job to stop via its context.
func (f *Future) Cancel() {
	f.cancel()
}

// Name returns the job name.
func (f *Future) Name() string {
	return f.name
}

type task struct {
	job    Job
	ctx    context.Context
	future *Future
}

// Stats reports pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool is a fixed-size worker pool with a bounded queue.
type Pool struct {
	logger  *slog.Logger
	workers int
	queue   chan task

	baseCtx context.Context
	abort   context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New starts a pool with n workers and a queue of depth queueSize.
func New(n, queueSize int, logger *slog.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:  logger,
		workers: n,
		queue:   make(chan task, queueSize),
		baseCtx: ctx,
		abort:   cancel,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

// Submit queues job, blocking while the queue is full until ctx is done.
// The job's own context is detached from ctx.
func (p *Pool) Submit(ctx context.Context, job Job) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	t := p.newTask(job)
	select {
	case p.queue <- t:
		return t.future, nil
	case <-ctx.Done():
		t.future.cancel()
		return nil, ctx.Err()
	}
}

// TrySubmit queues job without blocking.
func (p *Pool) TrySubmit(job Job) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	t := p.newTask(job)
	select {
	case p.queue <- t:
		return t.future, nil
	default:
		t.future.cancel()
		return nil, ErrQueueFull
	}
}

func (p *Pool) newTask(job Job) task {
	ctx, cancel := context.WithCancel(p.baseCtx)
	return task{
		job: job,
		ctx: ctx,
		future: &Future{
			name:   job.Name,
			done:   make(chan struct{}),
			cancel: cancel,
		},
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(id, t)
	}
}

func (p *Pool) run(id int, t task) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer close(t.future.done)
	defer t.future.cancel()

	defer func() {
		if r := recover(); r != nil {
			t.future.err = fmt.Errorf("worker: job %s panicked: %v", t.job.Name, r)
			p.failed.Add(1)
			p.logger.Error("job panicked", "job", t.job.Name, "worker", id, "panic", r)
		}
	}()

	if err := t.ctx.Err(); err != nil {
		t.future.err = err
		p.failed.Add(1)
		return
	}

	err := t.job.Run(t.ctx)
	t.future.err = err
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("job failed", "job", t.job.Name, "worker", id, "error", err)
		return
	}
	p.completed.Add(1)
	p.logger.Debug("job completed", "job", t.job.Name, "worker", id)
}

// Close stops accepting jobs and waits for queued and running jobs to
// finish or ctx to end. On ctx expiry, running jobs are cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.abort()
		return nil
	case <-ctx.Done():
		p.abort()
		<-done
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.queue),
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}
