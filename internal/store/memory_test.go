package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%04d", s.n), nil
}

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newMemoryStore() (*Memory, *tickingClock) {
	clock := &tickingClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	return NewMemory(&seqIDs{}, clock), clock
}

func TestMemoryUpsertInsertThenUpdate(t *testing.T) {
	t.Parallel()

	m, _ := newMemoryStore()
	ctx := context.Background()

	id, created, err := m.UpsertServer(ctx, catalog.Server{Slug: "acme", Name: "Acme", Stars: 1})
	require.NoError(t, err)
	require.True(t, created)

	id2, created, err := m.UpsertServer(ctx, catalog.Server{Slug: "acme", Name: "Acme v2", Stars: 5})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id, id2)

	got, err := m.GetServerBySlug(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme v2", got.Name)
	require.Equal(t, 5, got.Stars)
	require.Equal(t, catalog.HealthUnknown, got.HealthStatus)
	require.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestMemoryListServersPagination(t *testing.T) {
	t.Parallel()

	m, _ := newMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _, err := m.UpsertServer(ctx, catalog.Server{
			Slug: fmt.Sprintf("server-%d", i),
			Name: fmt.Sprintf("Server %d", i),
		})
		require.NoError(t, err)
	}

	page1, next, err := m.ListServers(ctx, catalog.ServerFilter{}, "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)
	require.Equal(t, "server-4", page1[0].Slug)

	page2, next2, err := m.ListServers(ctx, catalog.ServerFilter{}, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotEmpty(t, next2)
	require.Equal(t, "server-2", page2[0].Slug)

	page3, next3, err := m.ListServers(ctx, catalog.ServerFilter{}, next2, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Empty(t, next3)
	require.Equal(t, "server-0", page3[0].Slug)
}

func TestMemoryListServersCursorSurvivesMissingRow(t *testing.T) {
	t.Parallel()

	m, _ := newMemoryStore()
	ctx := context.Background()
	for i, category := range []string{"weather", "files", "weather", "weather"} {
		_, _, err := m.UpsertServer(ctx, catalog.Server{
			Slug:     fmt.Sprintf("server-%d", i),
			Name:     fmt.Sprintf("Server %d", i),
			Category: category,
		})
		require.NoError(t, err)
	}

	// cursor points at server-1, which the category filter below excludes
	page, next, err := m.ListServers(ctx, catalog.ServerFilter{}, "", 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, "server-1", page[2].Slug)
	require.NotEmpty(t, next)

	weather := "weather"
	page, next, err = m.ListServers(ctx, catalog.ServerFilter{Category: &weather}, next, 3)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "server-0", page[0].Slug)
	require.Empty(t, next)
}

func TestMemoryListServersFilters(t *testing.T) {
	t.Parallel()

	m, _ := newMemoryStore()
	ctx := context.Background()
	_, _, err := m.UpsertServer(ctx, catalog.Server{Slug: "a", Name: "Weather Tools", Source: catalog.SourceSmithery, Category: "weather"})
	require.NoError(t, err)
	_, _, err = m.UpsertServer(ctx, catalog.Server{Slug: "b", Name: "File Browser", Source: catalog.SourcePulseMCP, Category: "files"})
	require.NoError(t, err)

	src := catalog.SourcePulseMCP
	got, _, err := m.ListServers(ctx, catalog.ServerFilter{Source: &src}, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].Slug)

	got, _, err = m.ListServers(ctx, catalog.ServerFilter{Search: "weather"}, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Slug)
}

func TestMemoryHealthLifecycle(t *testing.T) {
	t.Parallel()

	m, clock := newMemoryStore()
	ctx := context.Background()

	id, _, err := m.UpsertServer(ctx, catalog.Server{Slug: "acme", Name: "Acme"})
	require.NoError(t, err)

	due, err := m.ServersDueHealthCheck(ctx, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	checked := clock.Now()
	require.NoError(t, m.RecordHealthSample(ctx, catalog.HealthSample{
		ServerID:  id,
		CheckedAt: checked,
		Status:    catalog.HealthOnline,
		LatencyMs: 120,
	}))
	require.NoError(t, m.SetServerHealth(ctx, id, catalog.HealthOnline, checked))

	got, err := m.GetServer(ctx, id)
	require.NoError(t, err)
	require.Equal(t, catalog.HealthOnline, got.HealthStatus)
	require.NotNil(t, got.LastChecked)

	due, err = m.ServersDueHealthCheck(ctx, time.Hour, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	history, err := m.ListHealthHistory(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.EqualValues(t, 120, history[0].LatencyMs)

	require.ErrorIs(t, m.SetServerHealth(ctx, "missing", catalog.HealthOffline, checked), ErrNotFound)
}

func TestMemoryRollupsAndPrune(t *testing.T) {
	t.Parallel()

	m, _ := newMemoryStore()
	ctx := context.Background()

	id, _, err := m.UpsertServer(ctx, catalog.Server{Slug: "acme", Name: "Acme"})
	require.NoError(t, err)

	windowStart := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	samples := []catalog.HealthSample{
		{ServerID: id, CheckedAt: windowStart.Add(5 * time.Minute), Status: catalog.HealthOnline, LatencyMs: 100},
		{ServerID: id, CheckedAt: windowStart.Add(15 * time.Minute), Status: catalog.HealthDegraded, LatencyMs: 300},
		{ServerID: id, CheckedAt: windowStart.Add(25 * time.Minute), Status: catalog.HealthOffline},
		{ServerID: id, CheckedAt: windowStart.Add(2 * time.Hour), Status: catalog.HealthOnline, LatencyMs: 50},
	}
	for _, s := range samples {
		require.NoError(t, m.RecordHealthSample(ctx, s))
	}

	n, err := m.UpsertRollups(ctx, windowStart, windowStart.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rollups := m.Rollups()
	require.Len(t, rollups, 1)
	r := rollups[0]
	require.Equal(t, 3, r.Samples)
	require.InDelta(t, 66.67, r.UptimePct, 0.01)
	require.InDelta(t, 200, r.AvgLatencyMs, 0.01)

	pruned, err := m.PruneHealthSamples(ctx, windowStart.Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 3, pruned)

	history, err := m.ListHealthHistory(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}
