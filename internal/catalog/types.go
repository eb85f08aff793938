// Package catalog defines the core types and interfaces for the MCP server
// directory: catalog records, health samples, sync jobs, and the seams the
// pipeline subsystems plug into.
package catalog

import (
	"net/http"
	"time"
)

// SourceName identifies an upstream directory a server was discovered on.
type SourceName string

// Known upstream sources.
const (
	SourceSmithery SourceName = "smithery"
	SourcePulseMCP SourceName = "pulsemcp"
	SourceManual   SourceName = "manual"
)

// HealthStatus is the last known reachability of a server endpoint.
type HealthStatus string

// Health status values persisted on the server row.
const (
	HealthUnknown  HealthStatus = "unknown"
	HealthOnline   HealthStatus = "online"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
)

// Server is a single directory entry.
type Server struct {
	ID           string       `json:"id"`
	Slug         string       `json:"slug"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	HomepageURL  string       `json:"homepage_url,omitempty"`
	EndpointURL  string       `json:"endpoint_url,omitempty"`
	Source       SourceName   `json:"source"`
	SourceRef    string       `json:"source_ref,omitempty"`
	Category     string       `json:"category,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	Stars        int          `json:"stars"`
	HealthStatus HealthStatus `json:"health_status"`
	LastChecked  *time.Time   `json:"last_checked_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HealthSample is one recorded health check against a server.
type HealthSample struct {
	ServerID   string       `json:"server_id"`
	CheckedAt  time.Time    `json:"checked_at"`
	Status     HealthStatus `json:"status"`
	LatencyMs  int64        `json:"latency_ms"`
	StatusCode int          `json:"status_code,omitempty"`
	URLTried   string       `json:"url_tried,omitempty"`
}

// HealthRollup is an aggregated uptime/latency window per server.
type HealthRollup struct {
	ServerID     string    `json:"server_id"`
	WindowStart  time.Time `json:"window_start"`
	UptimePct    float64   `json:"uptime_pct"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	Samples      int       `json:"samples"`
}

// ToolsDetection records an attempt to enumerate the tools a server exposes.
type ToolsDetection struct {
	ServerID   string    `json:"server_id"`
	DetectedAt time.Time `json:"detected_at"`
	Tools      []string  `json:"tools,omitempty"`
	OK         bool      `json:"ok"`
	ErrorText  string    `json:"error_text,omitempty"`
}

// SyncJobStatus represents the lifecycle state of a sync job.
type SyncJobStatus string

// Sync job status values persisted in the job store.
const (
	SyncStatusQueued    SyncJobStatus = "queued"
	SyncStatusRunning   SyncJobStatus = "running"
	SyncStatusSucceeded SyncJobStatus = "succeeded"
	SyncStatusFailed    SyncJobStatus = "failed"
	SyncStatusCanceled  SyncJobStatus = "canceled"
)

// SyncStats mirrors the stats block returned by the original sync operation.
type SyncStats struct {
	Total   int      `json:"total"`
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncJob is the metadata persisted for each requested catalog sync.
type SyncJob struct {
	ID        string        `json:"id"`
	Source    SourceName    `json:"source"`
	Status    SyncJobStatus `json:"status"`
	Submitted time.Time     `json:"submitted_at"`
	Started   *time.Time    `json:"started_at,omitempty"`
	Finished  *time.Time    `json:"finished_at,omitempty"`
	ErrorText string        `json:"error_text,omitempty"`
	Stats     SyncStats     `json:"stats"`
}

// SourceServer is a server as returned by an upstream source, before
// normalization into a catalog Server.
type SourceServer struct {
	Name        string
	DisplayName string
	Description string
	HomepageURL string
	EndpointURL string
	SourceRef   string
	Category    string
	Tags        []string
	Stars       int
	Raw         []byte
}

// Page is a fetched HTML document plus transport metadata.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// CacheStats reports hit/miss counters for a Cache implementation.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// ServerFilter narrows List queries.
type ServerFilter struct {
	Source   *SourceName
	Category *string
	Status   *HealthStatus
	Search   string
}

// QueueItem wraps a sync job ready to run.
type QueueItem struct {
	JobID     string
	Source    SourceName
	Attempt   int
	Submitted int64
}
