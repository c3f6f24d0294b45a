// Package workerpool runs background call work (audio prewarm, call log
// persistence) on a bounded set of goroutines so webhook turns never wait on it.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("workerpool: queue full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("workerpool: stopped")
)

// Task is one piece of background work.
type Task struct {
	// Name identifies the task in logs, e.g. "calllog-CA123".
	Name string
	Run  func(context.Context) error
	// Timeout bounds Run; zero means no deadline.
	Timeout time.Duration
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// WorkerPool executes tasks on a fixed number of goroutines fed by a
// bounded queue.
type WorkerPool struct {
	name    string
	workers int
	queue   chan Task
	logger  *zap.Logger

	// ctx is the parent of every task context; it is cancelled when Stop
	// gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	running   atomic.Int32
	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a worker pool and starts its workers
func New(cfg Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		name:    cfg.Name,
		workers: cfg.MaxWorkers,
		queue:   make(chan Task, cfg.QueueSize),
		logger:  cfg.Logger.With(zap.String("pool", cfg.Name)),
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.loop()
	}

	p.logger.Info("Worker pool started",
		zap.Int("max_workers", p.workers),
		zap.Int("queue_size", cfg.QueueSize))
	return p
}

func (p *WorkerPool) loop() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *WorkerPool) run(task Task) {
	p.running.Add(1)
	defer p.running.Add(-1)

	start := time.Now()
	if err := p.invoke(task); err != nil {
		p.failed.Add(1)
		p.logger.Error("Background task failed",
			zap.String("task", task.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	p.succeeded.Add(1)
	p.logger.Debug("Background task done",
		zap.String("task", task.Name),
		zap.Duration("duration", time.Since(start)))
}

func (p *WorkerPool) invoke(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()

	ctx := p.ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	return task.Run(ctx)
}

// Submit queues a task without blocking. It fails with ErrQueueFull or
// ErrStopped; callers decide whether to run the work inline instead.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.rejected.Add(1)
		return ErrStopped
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stop closes the queue and waits up to timeout for queued tasks to finish.
// Tasks still running after that see their context cancelled.
func (p *WorkerPool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool stopped")
		return nil
	case <-timer.C:
		p.cancel()
		p.logger.Warn("Worker pool stop timed out, cancelling running tasks",
			zap.Int("queued", len(p.queue)),
			zap.Int32("running", p.running.Load()))
		return fmt.Errorf("worker pool %s: stop timed out after %v", p.name, timeout)
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Name      string
	Workers   int
	Running   int
	Queued    int
	Submitted uint64
	Succeeded uint64
	Failed    uint64
	Rejected  uint64
}

// Stats returns the current counters.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Workers:   p.workers,
		Running:   int(p.running.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
