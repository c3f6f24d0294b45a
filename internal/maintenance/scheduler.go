// Package maintenance runs periodic housekeeping jobs on cron schedules.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc does one pass of a job and reports how many items it handled.
type JobFunc func(ctx context.Context) (int, error)

type job struct {
	name string
	spec string
	fn   JobFunc
}

// Scheduler runs registered jobs on their cron schedules. A job still
// running when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	jobs    []job
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. timeout bounds each job run.
func NewScheduler(timeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	cl := cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Add registers a job. spec is a standard five field cron expression or a
// descriptor such as "@every 5m".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	j := job{name: name, spec: spec, fn: fn}
	if _, err := s.cron.AddFunc(spec, func() { s.run(s.ctx, j) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	s.logger.Info("Scheduled maintenance job",
		zap.String("job", name),
		zap.String("schedule", spec))
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Maintenance jobs still running at shutdown")
		return
	}
	s.cancel()
}

// RunAll runs every registered job once, in registration order.
func (s *Scheduler) RunAll(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]job(nil), s.jobs...)
	s.mu.Unlock()

	for _, j := range jobs {
		s.run(ctx, j)
	}
}

func (s *Scheduler) run(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := j.fn(ctx)
	if err != nil {
		s.logger.Error("Maintenance job failed",
			zap.String("job", j.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Maintenance job completed",
			zap.String("job", j.name),
			zap.Int("items", n),
			zap.Duration("duration", time.Since(start)))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
