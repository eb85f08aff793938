package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
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

func newPinger(degraded time.Duration) *Pinger {
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	return NewPinger(2*time.Second, degraded, "mcpindex-bot/0.1", nil, nil, clock, nil)
}

func TestPingerEndpointOnline(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sample := newPinger(0).Check(context.Background(), catalog.Server{
		ID:          "s1",
		EndpointURL: srv.URL,
	})
	require.Equal(t, catalog.HealthOnline, sample.Status)
	require.Equal(t, http.StatusOK, sample.StatusCode)
	require.Equal(t, srv.URL, sample.URLTried)
}

func TestPingerFallsBackToHealthVariant(t *testing.T) {
	t.Parallel()
	metrics.Init()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sample := newPinger(0).Check(context.Background(), catalog.Server{
		ID:          "s1",
		EndpointURL: srv.URL,
	})
	require.Equal(t, catalog.HealthOnline, sample.Status)
	require.Equal(t, srv.URL+"/healthz", sample.URLTried)
}

func TestPingerAuthWallCountsAsOnline(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "auth required", http.StatusUnauthorized)
	}))
	defer srv.Close()

	sample := newPinger(0).Check(context.Background(), catalog.Server{
		ID:          "s1",
		EndpointURL: srv.URL,
	})
	require.Equal(t, catalog.HealthOnline, sample.Status)
	require.Equal(t, http.StatusUnauthorized, sample.StatusCode)
}

func TestPingerHomepageLastResort(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sample := newPinger(0).Check(context.Background(), catalog.Server{
		ID:          "s1",
		HomepageURL: srv.URL,
	})
	require.Equal(t, catalog.HealthOnline, sample.Status)
	require.Equal(t, srv.URL, sample.URLTried)
}

func TestPingerAllCandidatesDownIsOffline(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	sample := newPinger(0).Check(context.Background(), catalog.Server{
		ID:          "s1",
		EndpointURL: srv.URL,
		HomepageURL: srv.URL + "/home",
	})
	require.Equal(t, catalog.HealthOffline, sample.Status)
}

func TestPingerSlowResponseIsDegraded(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sample := newPinger(time.Millisecond).Check(context.Background(), catalog.Server{
		ID:          "s1",
		EndpointURL: srv.URL,
	})
	require.Equal(t, catalog.HealthDegraded, sample.Status)
}

type eagerRetry struct {
	maxAttempts int
}

func (p eagerRetry) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < p.maxAttempts
}

func (p eagerRetry) Backoff(int) time.Duration { return 0 }

type recordingLimiter struct {
	mu   sync.Mutex
	urls []string
}

func (l *recordingLimiter) Wait(_ context.Context, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, url)
	return nil
}

func TestPingerRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// drop the connection mid-request so the client sees a
			// transport error rather than a status code
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	pinger := NewPinger(2*time.Second, 0, "mcpindex-bot/0.1", nil, eagerRetry{maxAttempts: 2}, clock, nil)

	sample := pinger.Check(context.Background(), catalog.Server{
		ID:          "s1",
		EndpointURL: srv.URL,
	})
	require.Equal(t, catalog.HealthOnline, sample.Status)
	require.Equal(t, srv.URL, sample.URLTried)
	require.Equal(t, int32(2), calls.Load())
}

func TestPingerWaitsOnLimiterPerAttempt(t *testing.T) {
	t.Parallel()
	metrics.Init()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	limiter := &recordingLimiter{}
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	pinger := NewPinger(2*time.Second, 0, "mcpindex-bot/0.1", limiter, nil, clock, nil)

	sample := pinger.Check(context.Background(), catalog.Server{
		ID:          "s1",
		EndpointURL: srv.URL,
	})
	require.Equal(t, catalog.HealthOnline, sample.Status)
	require.Equal(t, []string{srv.URL, srv.URL + "/health"}, limiter.urls)
}

func TestPingerNoURLsIsUnknown(t *testing.T) {
	t.Parallel()
	metrics.Init()

	sample := newPinger(0).Check(context.Background(), catalog.Server{ID: "s1"})
	require.Equal(t, catalog.HealthUnknown, sample.Status)
}

func TestCandidateURLOrder(t *testing.T) {
	t.Parallel()

	urls := candidateURLs(catalog.Server{
		EndpointURL: "https://api.example/mcp/",
		HomepageURL: "https://example.com",
	})
	require.Equal(t, []string{
		"https://api.example/mcp",
		"https://api.example/mcp/health",
		"https://api.example/mcp/healthz",
		"https://example.com",
	}, urls)
}

type staticChecker struct {
	status catalog.HealthStatus
}

func (c staticChecker) Check(_ context.Context, server catalog.Server) catalog.HealthSample {
	return catalog.HealthSample{
		ServerID:  server.ID,
		CheckedAt: time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC),
		Status:    c.status,
		LatencyMs: 42,
	}
}

func TestRunnerSweepsDueServers(t *testing.T) {
	t.Parallel()
	metrics.Init()

	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemory(&seqIDs{}, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := st.UpsertServer(ctx, catalog.Server{
			Slug: fmt.Sprintf("server-%d", i),
			Name: fmt.Sprintf("Server %d", i),
		})
		require.NoError(t, err)
	}

	runner := NewRunner(st, staticChecker{status: catalog.HealthOnline}, RunnerConfig{
		Concurrency: 2,
		BatchSize:   10,
		StaleAfter:  time.Hour,
	}, nil)

	checked, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, checked)

	servers, _, err := st.ListServers(ctx, catalog.ServerFilter{}, "", 10)
	require.NoError(t, err)
	for _, server := range servers {
		require.Equal(t, catalog.HealthOnline, server.HealthStatus)
		require.NotNil(t, server.LastChecked)

		history, err := st.ListHealthHistory(ctx, server.ID, 5)
		require.NoError(t, err)
		require.Len(t, history, 1)
	}

	checked, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, checked)
}
