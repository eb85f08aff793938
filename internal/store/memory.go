package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

// Memory is an in-process catalog.Store used by tests and the dev profile.
type Memory struct {
	mu         sync.RWMutex
	servers    map[string]catalog.Server
	bySlug     map[string]string
	samples    []catalog.HealthSample
	rollups    map[string]catalog.HealthRollup
	detections []catalog.ToolsDetection
	ids        catalog.IDGenerator
	clock      catalog.Clock
}

// NewMemory creates an empty in-memory store.
func NewMemory(ids catalog.IDGenerator, clock catalog.Clock) *Memory {
	return &Memory{
		servers: make(map[string]catalog.Server),
		bySlug:  make(map[string]string),
		rollups: make(map[string]catalog.HealthRollup),
		ids:     ids,
		clock:   clock,
	}
}

func (m *Memory) UpsertServer(_ context.Context, server catalog.Server) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now().UTC()
	if id, ok := m.bySlug[server.Slug]; ok {
		existing := m.servers[id]
		existing.Name = server.Name
		existing.Description = server.Description
		existing.HomepageURL = server.HomepageURL
		existing.EndpointURL = server.EndpointURL
		existing.SourceRef = server.SourceRef
		existing.Category = server.Category
		existing.Tags = append([]string(nil), server.Tags...)
		existing.Stars = server.Stars
		existing.UpdatedAt = now
		m.servers[id] = existing
		return id, false, nil
	}

	id := server.ID
	if id == "" {
		var err error
		id, err = m.ids.NewID()
		if err != nil {
			return "", false, err
		}
	}
	server.ID = id
	server.Tags = append([]string(nil), server.Tags...)
	server.HealthStatus = catalog.HealthUnknown
	server.LastChecked = nil
	server.CreatedAt = now
	server.UpdatedAt = now
	m.servers[id] = server
	m.bySlug[server.Slug] = id
	return id, true, nil
}

func (m *Memory) GetServer(_ context.Context, id string) (catalog.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	server, ok := m.servers[id]
	if !ok {
		return catalog.Server{}, ErrNotFound
	}
	return server, nil
}

func (m *Memory) GetServerBySlug(_ context.Context, slug string) (catalog.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySlug[slug]
	if !ok {
		return catalog.Server{}, ErrNotFound
	}
	return m.servers[id], nil
}

func (m *Memory) ListServers(_ context.Context, filter catalog.ServerFilter, cursor string, limit int) ([]catalog.Server, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	all := make([]catalog.Server, 0, len(m.servers))
	for _, server := range m.servers {
		if matchesFilter(server, filter) {
			all = append(all, server)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := 0
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		// keyset comparison, (created_at, id) < cursor; holds up even when
		// the cursor row was deleted or filtered out since the last page
		start = len(all)
		for i, server := range all {
			created := server.CreatedAt.UTC()
			if created.Before(ts) || (created.Equal(ts) && server.ID < id) {
				start = i
				break
			}
		}
	}

	end := start + limit
	next := ""
	if end < len(all) {
		next = encodeCursor(all[end-1])
	} else {
		end = len(all)
	}
	if start >= end {
		return nil, "", nil
	}
	return append([]catalog.Server(nil), all[start:end]...), next, nil
}

func matchesFilter(server catalog.Server, filter catalog.ServerFilter) bool {
	if filter.Source != nil && server.Source != *filter.Source {
		return false
	}
	if filter.Category != nil && server.Category != *filter.Category {
		return false
	}
	if filter.Status != nil && server.HealthStatus != *filter.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" {
		haystack := strings.ToLower(server.Name + " " + server.Description + " " + server.Slug)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func (m *Memory) ServersDueHealthCheck(_ context.Context, olderThan time.Duration, limit int) ([]catalog.Server, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	horizon := m.clock.Now().UTC().Add(-olderThan)

	m.mu.RLock()
	var due []catalog.Server
	for _, server := range m.servers {
		if server.LastChecked == nil || server.LastChecked.Before(horizon) {
			due = append(due, server)
		}
	}
	m.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool {
		li, lj := due[i].LastChecked, due[j].LastChecked
		switch {
		case li == nil && lj == nil:
			return due[i].ID < due[j].ID
		case li == nil:
			return true
		case lj == nil:
			return false
		default:
			return li.Before(*lj)
		}
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) RecordHealthSample(_ context.Context, sample catalog.HealthSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	return nil
}

func (m *Memory) SetServerHealth(_ context.Context, serverID string, status catalog.HealthStatus, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, ok := m.servers[serverID]
	if !ok {
		return ErrNotFound
	}
	checkedAt = checkedAt.UTC()
	server.HealthStatus = status
	server.LastChecked = &checkedAt
	server.UpdatedAt = checkedAt
	m.servers[serverID] = server
	return nil
}

func (m *Memory) ListHealthHistory(_ context.Context, serverID string, limit int) ([]catalog.HealthSample, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	var history []catalog.HealthSample
	for _, sample := range m.samples {
		if sample.ServerID == serverID {
			history = append(history, sample)
		}
	}
	m.mu.RUnlock()

	sort.Slice(history, func(i, j int) bool {
		return history[i].CheckedAt.After(history[j].CheckedAt)
	})
	if len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (m *Memory) UpsertRollups(_ context.Context, windowStart, windowEnd time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type agg struct {
		up      int
		total   int
		latency int64
	}
	byServer := make(map[string]*agg)
	for _, sample := range m.samples {
		if sample.CheckedAt.Before(windowStart) || !sample.CheckedAt.Before(windowEnd) {
			continue
		}
		a := byServer[sample.ServerID]
		if a == nil {
			a = &agg{}
			byServer[sample.ServerID] = a
		}
		a.total++
		if sample.Status == catalog.HealthOnline || sample.Status == catalog.HealthDegraded {
			a.up++
			a.latency += sample.LatencyMs
		}
	}

	for serverID, a := range byServer {
		rollup := catalog.HealthRollup{
			ServerID:    serverID,
			WindowStart: windowStart.UTC(),
			UptimePct:   100 * float64(a.up) / float64(a.total),
			Samples:     a.total,
		}
		if a.up > 0 {
			rollup.AvgLatencyMs = float64(a.latency) / float64(a.up)
		}
		m.rollups[serverID+"|"+windowStart.UTC().Format(time.RFC3339)] = rollup
	}
	return len(byServer), nil
}

func (m *Memory) PruneHealthSamples(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]
	var pruned int64
	for _, sample := range m.samples {
		if sample.CheckedAt.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, sample)
	}
	m.samples = kept
	return pruned, nil
}

func (m *Memory) RecordToolsDetection(_ context.Context, detection catalog.ToolsDetection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = append(m.detections, detection)
	return nil
}

// Detections returns all recorded tools detections; test helper.
func (m *Memory) Detections() []catalog.ToolsDetection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]catalog.ToolsDetection(nil), m.detections...)
}

// Rollups returns all stored rollups; test helper.
func (m *Memory) Rollups() []catalog.HealthRollup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.HealthRollup, 0, len(m.rollups))
	for _, r := range m.rollups {
		out = append(out, r)
	}
	return out
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
