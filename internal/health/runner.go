package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/metrics"
)

// Checker is the single-server probe seam; Pinger is the real implementation.
type Checker interface {
	Check(ctx context.Context, server catalog.Server) catalog.HealthSample
}

// RunnerConfig tunes one health sweep.
type RunnerConfig struct {
	Concurrency int
	BatchSize   int
	StaleAfter  time.Duration
}

// Runner sweeps servers whose health data has gone stale.
type Runner struct {
	store   catalog.Store
	checker Checker
	cfg     RunnerConfig
	logger  *zap.Logger
}

// NewRunner builds a runner over the store and checker.
func NewRunner(store catalog.Store, checker Checker, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:   store,
		checker: checker,
		cfg:     cfg,
		logger:  logger.Named("health"),
	}
}

// RunOnce checks every due server with a bounded worker pool and returns the
// number of servers probed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	servers, err := r.store.ServersDueHealthCheck(ctx, r.cfg.StaleAfter, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due servers: %w", err)
	}
	if len(servers) == 0 {
		return 0, nil
	}

	work := make(chan catalog.Server)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for server := range work {
				r.checkOne(ctx, server)
			}
		}()
	}

	dispatched := 0
feed:
	for _, server := range servers {
		select {
		case work <- server:
			dispatched++
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	r.logger.Info("health sweep finished",
		zap.Int("due", len(servers)),
		zap.Int("checked", dispatched),
	)
	if err := ctx.Err(); err != nil {
		return dispatched, fmt.Errorf("health sweep interrupted: %w", err)
	}
	return dispatched, nil
}

func (r *Runner) checkOne(ctx context.Context, server catalog.Server) {
	sample := r.checker.Check(ctx, server)
	metrics.ObserveHealthCheck(string(sample.Status), time.Duration(sample.LatencyMs)*time.Millisecond)

	if err := r.store.RecordHealthSample(ctx, sample); err != nil {
		r.logger.Warn("record health sample failed",
			zap.String("server_id", server.ID), zap.Error(err))
	}
	if err := r.store.SetServerHealth(ctx, server.ID, sample.Status, sample.CheckedAt); err != nil {
		r.logger.Warn("set server health failed",
			zap.String("server_id", server.ID), zap.Error(err))
	}
}
