// Package aggregate rolls raw health samples up into windowed uptime stats
// and enforces sample retention.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/metrics"
)

// Config tunes one aggregation pass.
type Config struct {
	Window    time.Duration
	Retention time.Duration
}

// Aggregator recomputes rollups for the most recent closed window and prunes
// samples past retention.
type Aggregator struct {
	store  catalog.Store
	clock  catalog.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds an aggregator.
func New(store catalog.Store, clock catalog.Clock, cfg Config, logger *zap.Logger) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("aggregate"),
	}
}

// RunOnce aggregates the last closed window and applies retention. The
// window is aligned to its own duration so repeated runs are idempotent.
func (a *Aggregator) RunOnce(ctx context.Context) (int, int64, error) {
	now := a.clock.Now().UTC()
	windowEnd := now.Truncate(a.cfg.Window)
	windowStart := windowEnd.Add(-a.cfg.Window)

	upserted, err := a.store.UpsertRollups(ctx, windowStart, windowEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate window %s: %w", windowStart.Format(time.RFC3339), err)
	}

	pruned, err := a.store.PruneHealthSamples(ctx, now.Add(-a.cfg.Retention))
	if err != nil {
		return upserted, 0, fmt.Errorf("prune samples: %w", err)
	}

	metrics.ObserveRollupRun(pruned)
	a.logger.Info("aggregation pass finished",
		zap.Time("window_start", windowStart),
		zap.Int("rollups", upserted),
		zap.Int64("pruned", pruned),
	)
	return upserted, pruned, nil
}
