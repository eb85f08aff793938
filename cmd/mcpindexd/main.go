// Command mcpindexd runs the MCP server directory service: REST API,
// source sync pipeline, health checker, and rollup aggregation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/aggregate"
	"github.com/mcpindex/mcpindex/internal/api"
	"github.com/mcpindex/mcpindex/internal/blob"
	"github.com/mcpindex/mcpindex/internal/cache"
	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/clock/system"
	"github.com/mcpindex/mcpindex/internal/config"
	"github.com/mcpindex/mcpindex/internal/enrich"
	"github.com/mcpindex/mcpindex/internal/fetch"
	collyfetch "github.com/mcpindex/mcpindex/internal/fetch/colly"
	"github.com/mcpindex/mcpindex/internal/fetch/headless"
	"github.com/mcpindex/mcpindex/internal/hash/sha256"
	"github.com/mcpindex/mcpindex/internal/health"
	uuidgen "github.com/mcpindex/mcpindex/internal/id/uuid"
	"github.com/mcpindex/mcpindex/internal/logging"
	"github.com/mcpindex/mcpindex/internal/metrics"
	"github.com/mcpindex/mcpindex/internal/publisher"
	"github.com/mcpindex/mcpindex/internal/queue"
	"github.com/mcpindex/mcpindex/internal/ratelimit"
	"github.com/mcpindex/mcpindex/internal/scheduler"
	"github.com/mcpindex/mcpindex/internal/sources"
	"github.com/mcpindex/mcpindex/internal/store"
	syncsvc "github.com/mcpindex/mcpindex/internal/sync"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; env vars also apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	ids := uuidgen.New()
	hasher := sha256.New()

	st, err := buildStore(ctx, cfg, ids, clock, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	payloadCache, err := buildCache(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}

	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	events, topic, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.DomainRPS,
		DefaultBurst: cfg.Crawler.DomainBurst,
	})
	retry := catalog.NewExponentialRetryPolicy()

	srcs := buildSources(cfg, payloadCache, limiter, retry, logger)
	if len(srcs) == 0 {
		logger.Warn("no sources enabled; sync is inert")
	}

	enricher, closeHeadless, err := buildEnricher(cfg, limiter, st, clock, logger)
	if err != nil {
		return err
	}
	defer closeHeadless()

	jobs := syncsvc.NewMemoryJobStore(clock)
	q := queue.NewMemory(cfg.Crawler.QueueDepth)
	defer q.Close()

	worker := syncsvc.NewWorker(syncsvc.WorkerConfig{
		Queue:       q,
		Jobs:        jobs,
		Store:       st,
		Sources:     srcs,
		Blobs:       blobs,
		Publisher:   events,
		Hasher:      hasher,
		Enricher:    enricher,
		Topic:       topic,
		ContentType: cfg.Storage.ContentType,
		Logger:      logger,
	})
	dispatcher := syncsvc.NewDispatcher(worker, cfg.Crawler.Concurrency, logger)
	dispatcher.Start(ctx)

	service := syncsvc.NewService(q, jobs, ids, clock, srcs, logger)

	pinger := health.NewPinger(
		time.Duration(cfg.Health.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Health.DegradedMs)*time.Millisecond,
		cfg.Crawler.UserAgent,
		limiter,
		retry,
		clock,
		logger,
	)
	healthRunner := health.NewRunner(st, pinger, health.RunnerConfig{
		Concurrency: cfg.Health.Concurrency,
		BatchSize:   cfg.Health.BatchSize,
		StaleAfter:  time.Duration(cfg.Health.StaleAfterMin) * time.Minute,
	}, logger)

	aggregator := aggregate.New(st, clock, aggregate.Config{
		Window:    time.Duration(cfg.Aggregate.WindowMin) * time.Minute,
		Retention: time.Duration(cfg.Aggregate.RetentionDays) * 24 * time.Hour,
	}, logger)

	sched := scheduler.New(logger,
		scheduler.Job{
			Name:       "sync-all-sources",
			Every:      time.Duration(cfg.Crawler.SyncIntervalMin) * time.Minute,
			RunAtStart: true,
			Run: func(ctx context.Context) error {
				_, err := service.SubmitAll(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:  "health-sweep",
			Every: time.Duration(cfg.Health.IntervalMin) * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := healthRunner.RunOnce(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:  "aggregate-rollups",
			Every: time.Duration(cfg.Aggregate.IntervalMin) * time.Minute,
			Run: func(ctx context.Context) error {
				_, _, err := aggregator.RunOnce(ctx)
				return err
			},
		},
	)
	sched.Start(ctx)

	apiServer := api.NewServer(st, payloadCache, service, cfg.Auth, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	q.Close()
	dispatcher.Wait()
	sched.Wait()
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, ids catalog.IDGenerator, clock catalog.Clock, logger *zap.Logger) (catalog.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set; using in-memory store")
		return store.NewMemory(ids, clock), nil
	}
	st, err := store.NewPostgres(ctx, cfg.DB, ids, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return st, nil
}

func buildCache(ctx context.Context, cfg config.Config, clock catalog.Clock, logger *zap.Logger) (catalog.Cache, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemory(clock), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
	return cache.NewRedis(client)
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.BlobStore, error) {
	if cfg.Storage.Provider == "gcs" {
		logger.Info("archiving payloads to gcs", zap.String("bucket", cfg.Storage.GCSBucket))
		return blob.NewGCS(ctx, cfg.Storage.GCSBucket, cfg.Storage.Prefix)
	}
	return blob.NewMemory(cfg.Storage.Prefix), nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.Publisher, string, error) {
	if !cfg.PubSub.Enabled {
		return publisher.NewMemory(), "sync-events", nil
	}
	pub, err := publisher.NewPubSub(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("connect pubsub: %w", err)
	}
	logger.Info("publishing sync events",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicName),
	)
	return pub, cfg.PubSub.TopicName, nil
}

func buildSources(cfg config.Config, payloadCache catalog.Cache, limiter catalog.Limiter, retry catalog.RetryPolicy, logger *zap.Logger) []catalog.Source {
	var srcs []catalog.Source
	timeout := cfg.FetchTimeout()
	ttl := cfg.CacheTTL()
	if cfg.Sources.Smithery.Enabled {
		srcs = append(srcs, sources.NewSmithery(cfg.Sources.Smithery, timeout, payloadCache, limiter, retry, ttl, logger))
	}
	if cfg.Sources.PulseMCP.Enabled {
		srcs = append(srcs, sources.NewPulseMCP(cfg.Sources.PulseMCP, timeout, payloadCache, limiter, retry, ttl, logger))
	}
	return srcs
}

func buildEnricher(cfg config.Config, limiter catalog.Limiter, st catalog.Store, clock catalog.Clock, logger *zap.Logger) (*enrich.Enricher, func(), error) {
	pageFetcher := collyfetch.New(collyfetch.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})

	var (
		headlessFetcher catalog.Fetcher = headless.NewNoop()
		closeHeadless                   = func() {}
	)
	if cfg.Headless.Enabled {
		chrome, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("start headless fetcher: %w", err)
		}
		headlessFetcher = chrome
		closeHeadless = chrome.Close
	}

	detector := fetch.NewHeuristicDetector(cfg.Headless.MinHTMLBytes, nil, []string{
		"__next_data__", "window.__nuxt__", "id=\"root\"></div>", "id=\"app\"></div>",
	})
	return enrich.New(pageFetcher, headlessFetcher, detector, limiter, st, clock, logger), closeHeadless, nil
}
