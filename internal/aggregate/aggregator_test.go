package aggregate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/metrics"
	"github.com/mcpindex/mcpindex/internal/store"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%04d", s.n), nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestAggregatorRollsUpAndPrunes(t *testing.T) {
	t.Parallel()
	metrics.Init()

	now := time.Date(2026, 8, 30, 12, 10, 0, 0, time.UTC)
	clock := fixedClock{now: now}
	st := store.NewMemory(&seqIDs{}, clock)
	ctx := context.Background()

	id, _, err := st.UpsertServer(ctx, catalog.Server{Slug: "acme", Name: "Acme"})
	require.NoError(t, err)

	windowStart := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	require.NoError(t, st.RecordHealthSample(ctx, catalog.HealthSample{
		ServerID: id, CheckedAt: windowStart.Add(10 * time.Minute),
		Status: catalog.HealthOnline, LatencyMs: 80,
	}))
	require.NoError(t, st.RecordHealthSample(ctx, catalog.HealthSample{
		ServerID: id, CheckedAt: windowStart.Add(40 * time.Minute),
		Status: catalog.HealthOffline,
	}))
	// ancient sample, past retention
	require.NoError(t, st.RecordHealthSample(ctx, catalog.HealthSample{
		ServerID: id, CheckedAt: now.Add(-40 * 24 * time.Hour),
		Status: catalog.HealthOnline, LatencyMs: 10,
	}))

	agg := New(st, clock, Config{Window: time.Hour, Retention: 30 * 24 * time.Hour}, nil)
	upserted, pruned, err := agg.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, upserted)
	require.EqualValues(t, 1, pruned)

	rollups := st.Rollups()
	require.Len(t, rollups, 1)
	require.Equal(t, windowStart, rollups[0].WindowStart)
	require.Equal(t, 2, rollups[0].Samples)
	require.InDelta(t, 50, rollups[0].UptimePct, 0.01)
}
