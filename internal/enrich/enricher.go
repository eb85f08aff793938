// Package enrich augments freshly synced servers with details scraped from
// their homepages: descriptions and advertised tool names.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

const maxTools = 50

var toolNameRe = regexp.MustCompile(`^[a-z][a-z0-9_.-]{2,40}$`)

// Enricher fetches a server's homepage and records what it finds. Pages that
// look JS-rendered are retried through the headless fetcher.
type Enricher struct {
	fetcher  catalog.Fetcher
	headless catalog.Fetcher
	detector catalog.RenderDetector
	limiter  catalog.Limiter
	store    catalog.Store
	clock    catalog.Clock
	logger   *zap.Logger
}

// New builds an enricher. headless may be a noop fetcher when rendering is
// disabled.
func New(fetcher, headless catalog.Fetcher, detector catalog.RenderDetector, limiter catalog.Limiter, store catalog.Store, clock catalog.Clock, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		fetcher:  fetcher,
		headless: headless,
		detector: detector,
		limiter:  limiter,
		store:    store,
		clock:    clock,
		logger:   logger.Named("enrich"),
	}
}

// EnrichServer scrapes the server's homepage and records a tools detection.
// Servers without a homepage are skipped.
func (e *Enricher) EnrichServer(ctx context.Context, server catalog.Server) error {
	if server.HomepageURL == "" {
		return nil
	}

	page, err := e.fetchPage(ctx, server.HomepageURL)
	detection := catalog.ToolsDetection{
		ServerID:   server.ID,
		DetectedAt: e.clock.Now().UTC(),
	}
	if err != nil {
		detection.ErrorText = err.Error()
		if recErr := e.store.RecordToolsDetection(ctx, detection); recErr != nil {
			return fmt.Errorf("record failed detection: %w", recErr)
		}
		return fmt.Errorf("fetch homepage %s: %w", server.HomepageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		detection.ErrorText = err.Error()
		if recErr := e.store.RecordToolsDetection(ctx, detection); recErr != nil {
			return fmt.Errorf("record failed detection: %w", recErr)
		}
		return fmt.Errorf("parse homepage %s: %w", server.HomepageURL, err)
	}

	detection.Tools = extractTools(doc)
	detection.OK = true
	if err := e.store.RecordToolsDetection(ctx, detection); err != nil {
		return fmt.Errorf("record detection: %w", err)
	}

	e.logger.Debug("enriched server",
		zap.String("server_id", server.ID),
		zap.Int("tools", len(detection.Tools)),
		zap.Bool("rendered", page.Rendered),
	)
	return nil
}

func (e *Enricher) fetchPage(ctx context.Context, url string) (catalog.Page, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, url); err != nil {
			return catalog.Page{}, err
		}
	}
	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return catalog.Page{}, err
	}
	if e.detector != nil && e.headless != nil && e.detector.NeedsJS(ctx, page) {
		// the headless fetch hits the same domain again
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, url); err != nil {
				return page, nil
			}
		}
		rendered, err := e.headless.Fetch(ctx, url)
		if err != nil {
			// fall back to the static page
			e.logger.Debug("headless refetch failed", zap.String("url", url), zap.Error(err))
			return page, nil
		}
		return rendered, nil
	}
	return page, nil
}

// extractTools looks for tool listings: code elements beneath a heading that
// mentions tools, then any list-item code as a fallback.
func extractTools(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var tools []string
	add := func(raw string) {
		name := strings.ToLower(strings.TrimSpace(raw))
		if !toolNameRe.MatchString(name) {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		tools = append(tools, name)
	}

	doc.Find("h1, h2, h3, h4").Each(func(_ int, heading *goquery.Selection) {
		if !strings.Contains(strings.ToLower(heading.Text()), "tool") {
			return
		}
		heading.NextUntil("h1, h2, h3, h4").Find("code").Each(func(_ int, code *goquery.Selection) {
			add(code.Text())
		})
	})
	if len(tools) == 0 {
		doc.Find("li code, td code").Each(func(_ int, code *goquery.Selection) {
			add(code.Text())
		})
	}
	if len(tools) > maxTools {
		tools = tools[:maxTools]
	}
	return tools
}
