package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/config"
	"github.com/mcpindex/mcpindex/internal/metrics"
	syncsvc "github.com/mcpindex/mcpindex/internal/sync"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	historyLimit     = 100
	requestTimeout   = 30 * time.Second
)

// Server wires HTTP routes to the catalog subsystems.
type Server struct {
	store  catalog.Store
	cache  catalog.Cache
	sync   *syncsvc.Service
	auth   config.AuthConfig
	logger *zap.Logger
}

// NewServer builds the API server.
func NewServer(store catalog.Store, cache catalog.Cache, sync *syncsvc.Service, auth config.AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:  store,
		cache:  cache,
		sync:   sync,
		auth:   auth,
		logger: logger.Named("api"),
	}
}

// Routes assembles the router with its middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/servers", s.handleListServers)
		r.Get("/servers/search", s.handleSearchServers)
		r.Get("/servers/{id}", s.handleGetServer)
		r.Get("/servers/{id}/health", s.handleServerHealth)

		r.Get("/sync/{jobID}", s.handleGetSyncJob)
		r.Get("/cache/stats", s.handleCacheStats)

		r.Group(func(r chi.Router) {
			if s.auth.Enabled {
				r.Use(apiKeyAuth(s.auth.APIKey))
			}
			r.Post("/sync", s.handleSubmitSync)
			r.Post("/cache/clear", s.handleCacheClear)
		})
	})
	return r
}
