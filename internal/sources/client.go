// Package sources implements clients for the upstream directory sites the
// catalog is populated from.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/metrics"
)

const maxResponseBytes = 10 << 20

// client wraps the shared plumbing for JSON API sources: a pooled HTTP
// client, the payload cache, and the per-domain rate limiter.
type client struct {
	http    *http.Client
	cache   catalog.Cache
	limiter catalog.Limiter
	retry   catalog.RetryPolicy
	ttl     time.Duration
	logger  *zap.Logger
}

func newClient(
	timeout time.Duration,
	cache catalog.Cache,
	limiter catalog.Limiter,
	retry catalog.RetryPolicy,
	ttl time.Duration,
	logger *zap.Logger,
) client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return client{
		http:    &http.Client{Timeout: timeout},
		cache:   cache,
		limiter: limiter,
		retry:   retry,
		ttl:     ttl,
		logger:  logger,
	}
}

// getJSON fetches url with optional bearer auth, going through the cache
// and rate limiter. Responses are cached for the configured TTL.
func (c client) getJSON(ctx context.Context, url, bearer string) ([]byte, error) {
	if c.cache != nil {
		if body, ok, err := c.cache.Get(ctx, url); err == nil && ok {
			return body, nil
		} else if err != nil {
			c.logger.Warn("cache get failed", zap.String("url", url), zap.Error(err))
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := c.doGet(ctx, url, bearer)
		if err == nil {
			if c.cache != nil {
				if err := c.cache.Set(ctx, url, body, c.ttl); err != nil {
					c.logger.Warn("cache set failed", zap.String("url", url), zap.Error(err))
				}
			}
			return body, nil
		}
		lastErr = err
		if c.retry == nil || !c.retry.ShouldRetry(err, attempt) {
			break
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying source fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("source fetch canceled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c client) doGet(ctx context.Context, url, bearer string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveFetch(url, "error")
		return nil, fmt.Errorf("source request: %w", err)
	}
	defer resp.Body.Close()

	metrics.ObserveFetch(url, fmt.Sprintf("%d", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
