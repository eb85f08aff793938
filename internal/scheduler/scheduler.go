// Package scheduler runs the periodic background jobs: source syncs, health
// sweeps, and rollup aggregation.
package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic task. Runs never overlap: the next tick waits for the
// previous run to finish.
type Job struct {
	Name       string
	Every      time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Scheduler drives a set of jobs on their own tickers.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger

	wg sync.WaitGroup
}

// New builds a scheduler over the given jobs. Jobs without a positive
// interval are dropped.
func New(logger *zap.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Every <= 0 || job.Run == nil {
			logger.Warn("dropping misconfigured job", zap.String("job", job.Name))
			continue
		}
		kept = append(kept, job)
	}
	return &Scheduler{
		jobs:   kept,
		logger: logger.Named("scheduler"),
	}
}

// Start launches one goroutine per job. They exit when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.runLoop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	logger := s.logger.With(zap.String("job", job.Name), zap.Duration("every", job.Every))
	logger.Info("job loop started")

	if job.RunAtStart {
		s.runJob(ctx, job, logger)
	}

	// jittered start so loops with equal intervals do not fire together
	if delay := initialJitter(job.Every); delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("job loop stopped")
			return
		case <-ticker.C:
			s.runJob(ctx, job, logger)
		}
	}
}

func initialJitter(every time.Duration) time.Duration {
	limit := every / 10
	if limit > 30*time.Second {
		limit = 30 * time.Second
	}
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

func (s *Scheduler) runJob(ctx context.Context, job Job, logger *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error("job run failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	logger.Debug("job run finished", zap.Duration("took", time.Since(start)))
}
