// Package health probes catalog servers and records reachability samples.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

// Pinger checks a single server by trying its known URLs in priority order.
// Probes go through the shared per-domain limiter, and transient transport
// errors are retried per the retry policy.
type Pinger struct {
	client            *http.Client
	limiter           catalog.Limiter
	retry             catalog.RetryPolicy
	clock             catalog.Clock
	degradedThreshold time.Duration
	userAgent         string
	logger            *zap.Logger
}

// NewPinger builds a pinger with the given probe timeout and degraded
// latency threshold. limiter and retry may be nil.
func NewPinger(timeout, degradedThreshold time.Duration, userAgent string, limiter catalog.Limiter, retry catalog.RetryPolicy, clock catalog.Clock, logger *zap.Logger) *Pinger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pinger{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		limiter:           limiter,
		retry:             retry,
		clock:             clock,
		degradedThreshold: degradedThreshold,
		userAgent:         userAgent,
		logger:            logger.Named("health"),
	}
}

// Check probes the server's URL candidates in order and returns a sample for
// the first reachable one, or an offline sample when all fail.
func (p *Pinger) Check(ctx context.Context, server catalog.Server) catalog.HealthSample {
	checkedAt := p.clock.Now().UTC()
	candidates := candidateURLs(server)
	if len(candidates) == 0 {
		return catalog.HealthSample{
			ServerID:  server.ID,
			CheckedAt: checkedAt,
			Status:    catalog.HealthUnknown,
		}
	}

	var last catalog.HealthSample
	for _, url := range candidates {
		sample, reachable := p.probe(ctx, server.ID, url)
		sample.CheckedAt = checkedAt
		if reachable {
			return sample
		}
		last = sample
		if ctx.Err() != nil {
			break
		}
	}
	last.Status = catalog.HealthOffline
	return last
}

// candidateURLs returns probe targets in fixed priority: the MCP endpoint
// itself, its /health and /healthz variants, then the homepage.
func candidateURLs(server catalog.Server) []string {
	var out []string
	seen := make(map[string]struct{}, 4)
	add := func(url string) {
		url = strings.TrimSpace(url)
		if url == "" {
			return
		}
		if _, dup := seen[url]; dup {
			return
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	if endpoint := strings.TrimRight(server.EndpointURL, "/"); endpoint != "" {
		add(endpoint)
		add(endpoint + "/health")
		add(endpoint + "/healthz")
	}
	add(server.HomepageURL)
	return out
}

// probe checks one URL, retrying transient transport errors. Non-2xx
// responses are a definitive answer and are never retried.
func (p *Pinger) probe(ctx context.Context, serverID, url string) (catalog.HealthSample, bool) {
	var last catalog.HealthSample
	for attempt := 0; ; attempt++ {
		sample, reachable, err := p.tryOnce(ctx, serverID, url)
		if err == nil {
			return sample, reachable
		}
		last = sample
		if p.retry == nil || !p.retry.ShouldRetry(err, attempt) {
			break
		}
		wait := p.retry.Backoff(attempt)
		p.logger.Debug("retrying probe",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return last, false
		case <-time.After(wait):
		}
	}
	return last, false
}

func (p *Pinger) tryOnce(ctx context.Context, serverID, url string) (catalog.HealthSample, bool, error) {
	sample := catalog.HealthSample{
		ServerID: serverID,
		URLTried: url,
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, url); err != nil {
			sample.Status = catalog.HealthOffline
			return sample, false, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		sample.Status = catalog.HealthOffline
		return sample, false, nil
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	sample.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		p.logger.Debug("probe failed", zap.String("url", url), zap.Error(err))
		sample.Status = catalog.HealthOffline
		return sample, false, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	sample.StatusCode = resp.StatusCode
	if !reachableStatus(resp.StatusCode) {
		sample.Status = catalog.HealthOffline
		return sample, false, nil
	}
	if p.degradedThreshold > 0 && time.Duration(sample.LatencyMs)*time.Millisecond > p.degradedThreshold {
		sample.Status = catalog.HealthDegraded
	} else {
		sample.Status = catalog.HealthOnline
	}
	return sample, true, nil
}

// reachableStatus treats auth walls and method rejections as proof of life;
// MCP endpoints commonly refuse plain GETs.
func reachableStatus(code int) bool {
	switch {
	case code >= 200 && code < 400:
		return true
	case code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusMethodNotAllowed,
		code == http.StatusNotAcceptable:
		return true
	default:
		return false
	}
}
