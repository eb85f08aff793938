package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/store"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%04d", s.n), nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubFetcher struct {
	page catalog.Page
	err  error
}

func (f stubFetcher) Fetch(context.Context, string) (catalog.Page, error) {
	return f.page, f.err
}

type stubDetector struct{ needs bool }

func (d stubDetector) NeedsJS(context.Context, catalog.Page) bool { return d.needs }

func newTestStore(t *testing.T) (*store.Memory, string) {
	t.Helper()
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemory(&seqIDs{}, clock)
	id, _, err := st.UpsertServer(context.Background(), catalog.Server{Slug: "acme", Name: "Acme"})
	require.NoError(t, err)
	return st, id
}

const toolsHTML = `<html><body>
<h2>Available Tools</h2>
<ul>
  <li><code>search_web</code> runs a query</li>
  <li><code>fetch_page</code> downloads a page</li>
  <li><code>search_web</code> duplicate entry</li>
  <li><code>Not A Tool Name!!</code></li>
</ul>
<h2>Install</h2>
<p><code>npm install acme</code></p>
</body></html>`

func TestEnrichServerRecordsTools(t *testing.T) {
	t.Parallel()

	st, id := newTestStore(t)
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	e := New(
		stubFetcher{page: catalog.Page{StatusCode: http.StatusOK, Body: []byte(toolsHTML)}},
		nil, stubDetector{}, nil, st, clock, nil,
	)

	err := e.EnrichServer(context.Background(), catalog.Server{
		ID:          id,
		HomepageURL: "https://acme.example",
	})
	require.NoError(t, err)

	detections := st.Detections()
	require.Len(t, detections, 1)
	require.True(t, detections[0].OK)
	require.Equal(t, []string{"search_web", "fetch_page"}, detections[0].Tools)
}

func TestEnrichServerUsesHeadlessWhenNeeded(t *testing.T) {
	t.Parallel()

	st, id := newTestStore(t)
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	e := New(
		stubFetcher{page: catalog.Page{StatusCode: http.StatusOK, Body: []byte("<html></html>")}},
		stubFetcher{page: catalog.Page{StatusCode: http.StatusOK, Body: []byte(toolsHTML), Rendered: true}},
		stubDetector{needs: true}, nil, st, clock, nil,
	)

	err := e.EnrichServer(context.Background(), catalog.Server{
		ID:          id,
		HomepageURL: "https://spa.example",
	})
	require.NoError(t, err)

	detections := st.Detections()
	require.Len(t, detections, 1)
	require.NotEmpty(t, detections[0].Tools)
}

type countingLimiter struct {
	urls []string
}

func (l *countingLimiter) Wait(_ context.Context, url string) error {
	l.urls = append(l.urls, url)
	return nil
}

func TestEnrichServerHeadlessRefetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	st, id := newTestStore(t)
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	limiter := &countingLimiter{}
	e := New(
		stubFetcher{page: catalog.Page{StatusCode: http.StatusOK, Body: []byte("<html></html>")}},
		stubFetcher{page: catalog.Page{StatusCode: http.StatusOK, Body: []byte(toolsHTML), Rendered: true}},
		stubDetector{needs: true}, limiter, st, clock, nil,
	)

	err := e.EnrichServer(context.Background(), catalog.Server{
		ID:          id,
		HomepageURL: "https://spa.example",
	})
	require.NoError(t, err)

	// one wait for the static fetch, one for the headless refetch
	require.Equal(t, []string{"https://spa.example", "https://spa.example"}, limiter.urls)
}

func TestEnrichServerRecordsFetchFailure(t *testing.T) {
	t.Parallel()

	st, id := newTestStore(t)
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	e := New(stubFetcher{err: errors.New("connection refused")}, nil, nil, nil, st, clock, nil)

	err := e.EnrichServer(context.Background(), catalog.Server{
		ID:          id,
		HomepageURL: "https://down.example",
	})
	require.Error(t, err)

	detections := st.Detections()
	require.Len(t, detections, 1)
	require.False(t, detections[0].OK)
	require.Contains(t, detections[0].ErrorText, "connection refused")
}

func TestEnrichServerSkipsWithoutHomepage(t *testing.T) {
	t.Parallel()

	st, id := newTestStore(t)
	clock := fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	e := New(stubFetcher{}, nil, nil, nil, st, clock, nil)

	require.NoError(t, e.EnrichServer(context.Background(), catalog.Server{ID: id}))
	require.Empty(t, st.Detections())
}
