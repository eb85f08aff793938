package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/config"
)

// Smithery lists servers from the Smithery registry API.
type Smithery struct {
	cfg    config.SmitheryConfig
	client client
	logger *zap.Logger
}

type smitheryServer struct {
	QualifiedName string `json:"qualifiedName"`
	DisplayName   string `json:"displayName"`
	Description   string `json:"description"`
	Homepage      string `json:"homepage"`
	UseCount      int    `json:"useCount"`
	IsDeployed    bool   `json:"isDeployed"`
	CreatedAt     string `json:"createdAt"`
}

type smitheryPage struct {
	Servers    []smitheryServer `json:"servers"`
	Pagination struct {
		CurrentPage int `json:"currentPage"`
		PageSize    int `json:"pageSize"`
		TotalPages  int `json:"totalPages"`
		TotalCount  int `json:"totalCount"`
	} `json:"pagination"`
}

// NewSmithery builds a Smithery source client.
func NewSmithery(
	cfg config.SmitheryConfig,
	timeout time.Duration,
	cache catalog.Cache,
	limiter catalog.Limiter,
	retry catalog.RetryPolicy,
	ttl time.Duration,
	logger *zap.Logger,
) *Smithery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Smithery{
		cfg:    cfg,
		client: newClient(timeout, cache, limiter, retry, ttl, logger),
		logger: logger.Named("smithery"),
	}
}

// Name identifies this source in catalog records.
func (s *Smithery) Name() catalog.SourceName {
	return catalog.SourceSmithery
}

// List walks the registry's paginated server listing and returns every entry.
func (s *Smithery) List(ctx context.Context) ([]catalog.SourceServer, error) {
	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}

	var out []catalog.SourceServer
	for page := 1; page <= maxPages; page++ {
		listing, err := s.fetchPage(ctx, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("smithery page %d: %w", page, err)
		}
		for _, entry := range listing.Servers {
			out = append(out, s.toSourceServer(entry))
		}
		s.logger.Debug("fetched smithery page",
			zap.Int("page", page),
			zap.Int("servers", len(listing.Servers)),
			zap.Int("total_pages", listing.Pagination.TotalPages),
		)
		if listing.Pagination.TotalPages > 0 && page >= listing.Pagination.TotalPages {
			break
		}
		if len(listing.Servers) == 0 {
			break
		}
	}
	return out, nil
}

func (s *Smithery) fetchPage(ctx context.Context, page, pageSize int) (smitheryPage, error) {
	endpoint, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return smitheryPage{}, fmt.Errorf("parse base url: %w", err)
	}
	endpoint = endpoint.JoinPath("servers")
	q := endpoint.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	endpoint.RawQuery = q.Encode()

	body, err := s.client.getJSON(ctx, endpoint.String(), s.cfg.APIKey)
	if err != nil {
		return smitheryPage{}, err
	}
	var listing smitheryPage
	if err := json.Unmarshal(body, &listing); err != nil {
		return smitheryPage{}, fmt.Errorf("decode listing: %w", err)
	}
	return listing, nil
}

func (s *Smithery) toSourceServer(entry smitheryServer) catalog.SourceServer {
	raw, _ := json.Marshal(entry)
	tags := []string{"mcp"}
	if entry.IsDeployed {
		tags = append(tags, "hosted")
	}
	return catalog.SourceServer{
		Name:        entry.QualifiedName,
		DisplayName: entry.DisplayName,
		Description: entry.Description,
		HomepageURL: entry.Homepage,
		SourceRef:   entry.QualifiedName,
		Tags:        tags,
		Stars:       entry.UseCount,
		Raw:         raw,
	}
}
