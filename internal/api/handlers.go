package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/store"
	syncsvc "github.com/mcpindex/mcpindex/internal/sync"
)

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse struct {
	Servers    []catalog.Server `json:"servers"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type healthResponse struct {
	ServerID string                 `json:"server_id"`
	Status   catalog.HealthStatus   `json:"status"`
	History  []catalog.HealthSample `json:"history"`
}

type submitSyncRequest struct {
	Source string `json:"source"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.listServers(w, r, filter)
}

func (s *Server) handleSearchServers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Search = q
	s.listServers(w, r, filter)
}

func (s *Server) listServers(w http.ResponseWriter, r *http.Request, filter catalog.ServerFilter) {
	limit := parseLimit(r)
	cursor := r.URL.Query().Get("cursor")

	servers, next, err := s.store.ListServers(r.Context(), filter, cursor, limit)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		s.logger.Error("list servers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list servers failed")
		return
	}
	if servers == nil {
		servers = []catalog.Server{}
	}
	writeJSON(w, http.StatusOK, listResponse{Servers: servers, NextCursor: next})
}

// handleGetServer resolves by ID first, then by slug.
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")

	server, err := s.store.GetServer(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		server, err = s.store.GetServerBySlug(r.Context(), key)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		s.logger.Error("get server failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get server failed")
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Server) handleServerHealth(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")

	server, err := s.store.GetServer(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		server, err = s.store.GetServerBySlug(r.Context(), key)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		s.logger.Error("get server failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get server failed")
		return
	}

	history, err := s.store.ListHealthHistory(r.Context(), server.ID, historyLimit)
	if err != nil {
		s.logger.Error("list health history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list health history failed")
		return
	}
	if history == nil {
		history = []catalog.HealthSample{}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		ServerID: server.ID,
		Status:   server.HealthStatus,
		History:  history,
	})
}

func (s *Server) handleSubmitSync(w http.ResponseWriter, r *http.Request) {
	var req submitSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	source := catalog.SourceName(strings.ToLower(strings.TrimSpace(req.Source)))
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	job, err := s.sync.Submit(r.Context(), source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetSyncJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.sync.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, syncsvc.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get sync job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get sync job failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("cache stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func parseFilter(r *http.Request) (catalog.ServerFilter, error) {
	var filter catalog.ServerFilter
	q := r.URL.Query()

	if raw := strings.ToLower(strings.TrimSpace(q.Get("source"))); raw != "" {
		source := catalog.SourceName(raw)
		switch source {
		case catalog.SourceSmithery, catalog.SourcePulseMCP, catalog.SourceManual:
			filter.Source = &source
		default:
			return filter, errors.New("unknown source filter")
		}
	}
	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		filter.Category = &raw
	}
	if raw := strings.ToLower(strings.TrimSpace(q.Get("status"))); raw != "" {
		status := catalog.HealthStatus(raw)
		switch status {
		case catalog.HealthUnknown, catalog.HealthOnline, catalog.HealthDegraded, catalog.HealthOffline:
			filter.Status = &status
		default:
			return filter, errors.New("unknown status filter")
		}
	}
	filter.Search = strings.TrimSpace(q.Get("search"))
	return filter, nil
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPageLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
