package sync

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

// Service accepts sync requests, records the job, and hands it to the queue.
type Service struct {
	queue  catalog.Queue
	jobs   catalog.SyncJobStore
	ids    catalog.IDGenerator
	clock  catalog.Clock
	known  map[catalog.SourceName]struct{}
	logger *zap.Logger
}

// NewService builds a Service over the given sources.
func NewService(q catalog.Queue, jobs catalog.SyncJobStore, ids catalog.IDGenerator, clock catalog.Clock, sources []catalog.Source, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[catalog.SourceName]struct{}, len(sources))
	for _, src := range sources {
		known[src.Name()] = struct{}{}
	}
	return &Service{
		queue:  q,
		jobs:   jobs,
		ids:    ids,
		clock:  clock,
		known:  known,
		logger: logger.Named("sync"),
	}
}

// Submit creates a queued job for the named source.
func (s *Service) Submit(ctx context.Context, source catalog.SourceName) (catalog.SyncJob, error) {
	if _, ok := s.known[source]; !ok {
		return catalog.SyncJob{}, fmt.Errorf("unknown source %q", source)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return catalog.SyncJob{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now().UTC()
	job := catalog.SyncJob{
		ID:        id,
		Source:    source,
		Status:    catalog.SyncStatusQueued,
		Submitted: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return catalog.SyncJob{}, fmt.Errorf("create job: %w", err)
	}

	item := catalog.QueueItem{
		JobID:     id,
		Source:    source,
		Submitted: now.UnixMilli(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		if uerr := s.jobs.UpdateJobStatus(ctx, id, catalog.SyncStatusCanceled, err.Error(), catalog.SyncStats{}); uerr != nil {
			s.logger.Warn("cancel unqueued job failed", zap.String("job_id", id), zap.Error(uerr))
		}
		return catalog.SyncJob{}, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("sync job queued", zap.String("job_id", id), zap.String("source", string(source)))
	return job, nil
}

// SubmitAll queues one job per known source.
func (s *Service) SubmitAll(ctx context.Context) ([]catalog.SyncJob, error) {
	jobs := make([]catalog.SyncJob, 0, len(s.known))
	for source := range s.known {
		job, err := s.Submit(ctx, source)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Job returns a previously submitted job.
func (s *Service) Job(ctx context.Context, jobID string) (catalog.SyncJob, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// Dispatcher fans a fixed number of workers out over the queue.
type Dispatcher struct {
	worker  *Worker
	workers int
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher running n copies of worker.
func NewDispatcher(worker *Worker, n int, logger *zap.Logger) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		worker:  worker,
		workers: n,
		logger:  logger.Named("dispatcher"),
	}
}

// Start launches the worker goroutines. They exit when ctx is canceled or
// the queue closes.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting sync workers", zap.Int("count", d.workers))
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.worker.Run(ctx)
		}()
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
