package fetch

import (
	"context"
	"strings"
	"testing"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

func TestHeuristicDetectorBodyBelowThreshold(t *testing.T) {
	t.Parallel()

	d := NewHeuristicDetector(100, nil, nil)
	page := catalog.Page{Body: []byte("<html></html>")}
	if !d.NeedsJS(context.Background(), page) {
		t.Fatal("expected tiny body to require JS rendering")
	}

	big := catalog.Page{Body: []byte("<html>" + strings.Repeat("x", 200) + "</html>")}
	if d.NeedsJS(context.Background(), big) {
		t.Fatal("expected large body to pass without JS")
	}
}

func TestHeuristicDetectorKeywords(t *testing.T) {
	t.Parallel()

	d := NewHeuristicDetector(0, nil, []string{"__NEXT_DATA__", "window.__nuxt"})
	page := catalog.Page{Body: []byte(`<html><script id="__NEXT_DATA__">{}</script></html>`)}
	if !d.NeedsJS(context.Background(), page) {
		t.Fatal("expected SPA keyword to trigger JS rendering")
	}
}

func TestHeuristicDetectorMissingSelectors(t *testing.T) {
	t.Parallel()

	d := NewHeuristicDetector(0, []string{".server-card"}, nil)
	empty := catalog.Page{Body: []byte(`<html><body><div id="app"></div></body></html>`)}
	if !d.NeedsJS(context.Background(), empty) {
		t.Fatal("expected missing selector to trigger JS rendering")
	}

	present := catalog.Page{Body: []byte(`<html><body><div class="server-card">x</div></body></html>`)}
	if d.NeedsJS(context.Background(), present) {
		t.Fatal("expected present selector to pass without JS")
	}
}
