package catalog

import (
	"context"
	"time"
)

// Store persists directory entries, health samples, and rollups.
type Store interface {
	UpsertServer(ctx context.Context, server Server) (id string, created bool, err error)
	GetServer(ctx context.Context, id string) (Server, error)
	GetServerBySlug(ctx context.Context, slug string) (Server, error)
	ListServers(ctx context.Context, filter ServerFilter, cursor string, limit int) ([]Server, string, error)
	ServersDueHealthCheck(ctx context.Context, olderThan time.Duration, limit int) ([]Server, error)
	RecordHealthSample(ctx context.Context, sample HealthSample) error
	SetServerHealth(ctx context.Context, serverID string, status HealthStatus, checkedAt time.Time) error
	ListHealthHistory(ctx context.Context, serverID string, limit int) ([]HealthSample, error)
	UpsertRollups(ctx context.Context, windowStart, windowEnd time.Time) (int, error)
	PruneHealthSamples(ctx context.Context, olderThan time.Time) (int64, error)
	RecordToolsDetection(ctx context.Context, detection ToolsDetection) error
	Ping(ctx context.Context) error
	Close() error
}

// SyncJobStore persists sync job lifecycle metadata.
type SyncJobStore interface {
	CreateJob(ctx context.Context, job SyncJob) error
	UpdateJobStatus(ctx context.Context, jobID string, status SyncJobStatus, errText string, stats SyncStats) error
	GetJob(ctx context.Context, jobID string) (SyncJob, error)
}

// Source lists servers from an upstream directory site.
type Source interface {
	Name() SourceName
	List(ctx context.Context) ([]SourceServer, error)
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// RenderDetector decides whether a fetched page needs a headless re-fetch.
type RenderDetector interface {
	NeedsJS(ctx context.Context, page Page) bool
}

// Cache stores upstream payloads keyed by URL with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (CacheStats, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes sync completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for sync jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// RetryPolicy governs transient-failure retries.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Limiter throttles outbound requests per domain.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
