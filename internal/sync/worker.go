package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/metrics"
	"github.com/mcpindex/mcpindex/internal/queue"
)

// Event is published after each finished sync job.
type Event struct {
	JobID      string             `json:"job_id"`
	Source     catalog.SourceName `json:"source"`
	Status     string             `json:"status"`
	Stats      catalog.SyncStats  `json:"stats"`
	ArchiveURI string             `json:"archive_uri,omitempty"`
}

// Enricher augments newly added servers after upsert.
type Enricher interface {
	EnrichServer(ctx context.Context, server catalog.Server) error
}

// Worker consumes queued sync jobs and executes them.
type Worker struct {
	queue       catalog.Queue
	jobs        catalog.SyncJobStore
	store       catalog.Store
	sources     map[catalog.SourceName]catalog.Source
	blobs       catalog.BlobStore
	publisher   catalog.Publisher
	hasher      catalog.Hasher
	enricher    Enricher
	topic       string
	contentType string
	logger      *zap.Logger
}

// WorkerConfig wires a Worker's collaborators.
type WorkerConfig struct {
	Queue       catalog.Queue
	Jobs        catalog.SyncJobStore
	Store       catalog.Store
	Sources     []catalog.Source
	Blobs       catalog.BlobStore
	Publisher   catalog.Publisher
	Hasher      catalog.Hasher
	Enricher    Enricher
	Topic       string
	ContentType string
	Logger      *zap.Logger
}

// NewWorker builds a worker from its collaborators.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	bySource := make(map[catalog.SourceName]catalog.Source, len(cfg.Sources))
	for _, src := range cfg.Sources {
		bySource[src.Name()] = src
	}
	return &Worker{
		queue:       cfg.Queue,
		jobs:        cfg.Jobs,
		store:       cfg.Store,
		sources:     bySource,
		blobs:       cfg.Blobs,
		publisher:   cfg.Publisher,
		hasher:      cfg.Hasher,
		enricher:    cfg.Enricher,
		topic:       cfg.Topic,
		contentType: contentType,
		logger:      logger.Named("sync"),
	}
}

// Run dequeues and processes jobs until the context is canceled or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
				w.logger.Warn("dequeue failed", zap.Error(err))
			}
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item catalog.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("source", string(item.Source)))

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, catalog.SyncStatusRunning, "", catalog.SyncStats{}); err != nil {
		logger.Error("mark job running failed", zap.Error(err))
		return
	}

	stats, archiveURI, err := w.runJob(ctx, item)
	status := catalog.SyncStatusSucceeded
	errText := ""
	if err != nil {
		status = catalog.SyncStatusFailed
		errText = err.Error()
		logger.Error("sync job failed", zap.Error(err))
	} else {
		logger.Info("sync job finished",
			zap.Int("total", stats.Total),
			zap.Int("added", stats.Added),
			zap.Int("updated", stats.Updated),
			zap.Int("skipped", stats.Skipped),
		)
	}
	metrics.ObserveSyncJob(string(status))

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, status, errText, stats); err != nil {
		logger.Error("update job status failed", zap.Error(err))
	}
	w.publishEvent(ctx, logger, Event{
		JobID:      item.JobID,
		Source:     item.Source,
		Status:     string(status),
		Stats:      stats,
		ArchiveURI: archiveURI,
	})
}

func (w *Worker) runJob(ctx context.Context, item catalog.QueueItem) (catalog.SyncStats, string, error) {
	src, ok := w.sources[item.Source]
	if !ok {
		return catalog.SyncStats{}, "", fmt.Errorf("unknown source %q", item.Source)
	}

	entries, err := src.List(ctx)
	if err != nil {
		return catalog.SyncStats{}, "", fmt.Errorf("list %s: %w", item.Source, err)
	}

	archiveURI := w.archive(ctx, item, entries)

	stats := catalog.SyncStats{Total: len(entries)}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return stats, archiveURI, fmt.Errorf("sync interrupted: %w", ctx.Err())
		}
		server, err := Normalize(item.Source, entry)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, err.Error())
			metrics.ObserveSyncServer(string(item.Source), "skipped")
			continue
		}
		id, created, err := w.store.UpsertServer(ctx, server)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("upsert %s: %v", server.Slug, err))
			metrics.ObserveSyncServer(string(item.Source), "error")
			continue
		}
		if created {
			stats.Added++
			metrics.ObserveSyncServer(string(item.Source), "added")
			if w.enricher != nil {
				server.ID = id
				if err := w.enricher.EnrichServer(ctx, server); err != nil {
					w.logger.Debug("enrich failed",
						zap.String("slug", server.Slug), zap.Error(err))
				}
			}
		} else {
			stats.Updated++
			metrics.ObserveSyncServer(string(item.Source), "updated")
		}
	}
	return stats, archiveURI, nil
}

// archive stores the raw upstream payloads for later reprocessing. Failures
// are logged, not fatal: the sync itself proceeds.
func (w *Worker) archive(ctx context.Context, item catalog.QueueItem, entries []catalog.SourceServer) string {
	if w.blobs == nil {
		return ""
	}
	raws := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Raw) > 0 {
			raws = append(raws, json.RawMessage(entry.Raw))
		}
	}
	if len(raws) == 0 {
		return ""
	}
	payload, err := json.Marshal(raws)
	if err != nil {
		w.logger.Warn("marshal archive payload failed", zap.Error(err))
		return ""
	}

	fields := []zap.Field{zap.String("job_id", item.JobID)}
	if w.hasher != nil {
		if digest, err := w.hasher.Hash(payload); err == nil {
			fields = append(fields, zap.String("digest", digest))
		}
	}

	path := fmt.Sprintf("%s/%s.json", item.Source, item.JobID)
	uri, err := w.blobs.PutObject(ctx, path, w.contentType, payload)
	if err != nil {
		w.logger.Warn("archive payload failed", zap.Error(err), zap.String("path", path))
		return ""
	}
	w.logger.Debug("archived raw payload", append(fields, zap.String("uri", uri))...)
	return uri
}

func (w *Worker) publishEvent(ctx context.Context, logger *zap.Logger, event Event) {
	if w.publisher == nil || w.topic == "" {
		return
	}
	if _, err := w.publisher.Publish(ctx, w.topic, event); err != nil {
		logger.Warn("publish sync event failed", zap.Error(err))
	}
}
