package headless

import (
	"context"
	"fmt"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

// Noop is a Fetcher that always fails; used when headless rendering is
// disabled so callers never dereference a nil fetcher.
type Noop struct{}

// NewNoop creates a Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns an error.
func (Noop) Fetch(_ context.Context, url string) (catalog.Page, error) {
	return catalog.Page{}, fmt.Errorf("headless rendering disabled for %s", url)
}
