package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/config"
)

// PulseMCP lists servers from the PulseMCP public API.
type PulseMCP struct {
	cfg    config.PulseMCPConfig
	client client
	logger *zap.Logger
}

type pulseMCPServer struct {
	Name             string `json:"name"`
	URL              string `json:"url"`
	ExternalURL      string `json:"external_url"`
	ShortDescription string `json:"short_description"`
	SourceCodeURL    string `json:"source_code_url"`
	GithubStars      int    `json:"github_stars"`
	PackageRegistry  string `json:"package_registry"`
	PackageName      string `json:"package_name"`
}

type pulseMCPListing struct {
	Servers    []pulseMCPServer `json:"servers"`
	Next       string           `json:"next"`
	TotalCount int              `json:"total_count"`
}

// NewPulseMCP builds a PulseMCP source client.
func NewPulseMCP(
	cfg config.PulseMCPConfig,
	timeout time.Duration,
	cache catalog.Cache,
	limiter catalog.Limiter,
	retry catalog.RetryPolicy,
	ttl time.Duration,
	logger *zap.Logger,
) *PulseMCP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PulseMCP{
		cfg:    cfg,
		client: newClient(timeout, cache, limiter, retry, ttl, logger),
		logger: logger.Named("pulsemcp"),
	}
}

// Name identifies this source in catalog records.
func (p *PulseMCP) Name() catalog.SourceName {
	return catalog.SourcePulseMCP
}

// List follows the API's cursor-style "next" links until exhausted.
func (p *PulseMCP) List(ctx context.Context) ([]catalog.SourceServer, error) {
	count := p.cfg.CountPerPage
	if count <= 0 {
		count = 100
	}
	next, err := p.firstPageURL(count)
	if err != nil {
		return nil, err
	}

	var out []catalog.SourceServer
	for page := 0; next != ""; page++ {
		body, err := p.client.getJSON(ctx, next, "")
		if err != nil {
			return nil, fmt.Errorf("pulsemcp page %d: %w", page, err)
		}
		var listing pulseMCPListing
		if err := json.Unmarshal(body, &listing); err != nil {
			return nil, fmt.Errorf("pulsemcp page %d: decode listing: %w", page, err)
		}
		for _, entry := range listing.Servers {
			out = append(out, p.toSourceServer(entry))
		}
		p.logger.Debug("fetched pulsemcp page",
			zap.Int("page", page),
			zap.Int("servers", len(listing.Servers)),
			zap.Int("total_count", listing.TotalCount),
		)
		if len(listing.Servers) == 0 {
			break
		}
		next = p.resolveNext(listing.Next)
	}
	return out, nil
}

func (p *PulseMCP) firstPageURL(count int) (string, error) {
	endpoint, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	endpoint = endpoint.JoinPath("servers")
	q := endpoint.Query()
	q.Set("count_per_page", strconv.Itoa(count))
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

// resolveNext turns a relative "next" link into an absolute URL against the
// configured base. An empty or unparseable link ends pagination.
func (p *PulseMCP) resolveNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return ""
	}
	parsed, err := url.Parse(next)
	if err != nil {
		p.logger.Warn("bad next link from pulsemcp", zap.String("next", next), zap.Error(err))
		return ""
	}
	if parsed.IsAbs() {
		return next
	}
	base, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

func (p *PulseMCP) toSourceServer(entry pulseMCPServer) catalog.SourceServer {
	raw, _ := json.Marshal(entry)
	var tags []string
	if entry.PackageRegistry != "" {
		tags = append(tags, entry.PackageRegistry)
	}
	homepage := entry.ExternalURL
	if homepage == "" {
		homepage = entry.SourceCodeURL
	}
	return catalog.SourceServer{
		Name:        entry.Name,
		DisplayName: entry.Name,
		Description: entry.ShortDescription,
		HomepageURL: homepage,
		EndpointURL: entry.URL,
		SourceRef:   entry.Name,
		Tags:        tags,
		Stars:       entry.GithubStars,
		Raw:         raw,
	}
}
