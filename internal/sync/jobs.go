// Package sync runs catalog synchronization jobs: pulling upstream listings,
// normalizing them, and upserting them into the store.
package sync

import (
	"context"
	"errors"
	"sync"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

// ErrJobNotFound is returned when a job ID is unknown.
var ErrJobNotFound = errors.New("sync: job not found")

// MemoryJobStore keeps sync job metadata in-process.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]catalog.SyncJob
	clock catalog.Clock
}

// NewMemoryJobStore creates an empty job store.
func NewMemoryJobStore(clock catalog.Clock) *MemoryJobStore {
	return &MemoryJobStore{
		jobs:  make(map[string]catalog.SyncJob),
		clock: clock,
	}
}

// CreateJob registers a new job record.
func (s *MemoryJobStore) CreateJob(_ context.Context, job catalog.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus transitions a job, stamping started/finished times.
func (s *MemoryJobStore) UpdateJobStatus(_ context.Context, jobID string, status catalog.SyncJobStatus, errText string, stats catalog.SyncStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	now := s.clock.Now().UTC()
	job.Status = status
	job.ErrorText = errText
	job.Stats = stats
	switch status {
	case catalog.SyncStatusRunning:
		if job.Started == nil {
			job.Started = &now
		}
	case catalog.SyncStatusSucceeded, catalog.SyncStatusFailed, catalog.SyncStatusCanceled:
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob returns a job by ID.
func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (catalog.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.SyncJob{}, ErrJobNotFound
	}
	return job, nil
}
