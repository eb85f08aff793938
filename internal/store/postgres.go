package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const defaultListLimit = 50

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Postgres implements catalog.Store on top of pgx.
type Postgres struct {
	db     DB
	ids    catalog.IDGenerator
	clock  catalog.Clock
	logger *zap.Logger
}

// NewPostgres connects a pool using the given config and wraps it in a store.
func NewPostgres(ctx context.Context, cfg config.DBConfig, ids catalog.IDGenerator, clock catalog.Clock, logger *zap.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnLifetimeMin > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnLifetimeMin) * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewPostgresWithDB(pool, ids, clock, logger)
	if cfg.MigrateOnStart {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresWithDB wraps an existing pool (or mock) in a store.
func NewPostgresWithDB(db DB, ids catalog.IDGenerator, clock catalog.Clock, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{
		db:     db,
		ids:    ids,
		clock:  clock,
		logger: logger.Named("store"),
	}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("database schema applied")
	return nil
}

const upsertServerSQL = `
INSERT INTO servers (
    id, slug, name, description, homepage_url, endpoint_url,
    source, source_ref, category, tags, stars, health_status,
    created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
ON CONFLICT (slug) DO UPDATE SET
    name         = EXCLUDED.name,
    description  = EXCLUDED.description,
    homepage_url = EXCLUDED.homepage_url,
    endpoint_url = EXCLUDED.endpoint_url,
    source_ref   = EXCLUDED.source_ref,
    category     = EXCLUDED.category,
    tags         = EXCLUDED.tags,
    stars        = EXCLUDED.stars,
    updated_at   = EXCLUDED.updated_at
RETURNING id, (xmax = 0) AS created`

// UpsertServer inserts or refreshes the row keyed by slug. Health columns
// are never touched here; the health runner owns them.
func (s *Postgres) UpsertServer(ctx context.Context, server catalog.Server) (string, bool, error) {
	id := server.ID
	if id == "" {
		var err error
		id, err = s.ids.NewID()
		if err != nil {
			return "", false, fmt.Errorf("generate server id: %w", err)
		}
	}
	now := s.clock.Now().UTC()

	var (
		rowID   string
		created bool
	)
	err := s.db.QueryRow(ctx, upsertServerSQL,
		id, server.Slug, server.Name, server.Description,
		server.HomepageURL, server.EndpointURL,
		string(server.Source), server.SourceRef, server.Category,
		server.Tags, server.Stars, string(catalog.HealthUnknown), now,
	).Scan(&rowID, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert server %q: %w", server.Slug, err)
	}
	return rowID, created, nil
}

const serverColumns = `
    id, slug, name, description, homepage_url, endpoint_url,
    source, source_ref, category, tags, stars, health_status,
    last_checked_at, created_at, updated_at`

// GetServer looks up a server by primary key.
func (s *Postgres) GetServer(ctx context.Context, id string) (catalog.Server, error) {
	row := s.db.QueryRow(ctx, `SELECT`+serverColumns+` FROM servers WHERE id = $1`, id)
	return scanServer(row)
}

// GetServerBySlug looks up a server by its unique slug.
func (s *Postgres) GetServerBySlug(ctx context.Context, slug string) (catalog.Server, error) {
	row := s.db.QueryRow(ctx, `SELECT`+serverColumns+` FROM servers WHERE slug = $1`, slug)
	return scanServer(row)
}

// ListServers returns a filtered keyset page plus the cursor for the next one.
func (s *Postgres) ListServers(ctx context.Context, filter catalog.ServerFilter, cursor string, limit int) ([]catalog.Server, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Source != nil {
		clauses = append(clauses, "source = "+arg(string(*filter.Source)))
	}
	if filter.Category != nil {
		clauses = append(clauses, "category = "+arg(*filter.Category))
	}
	if filter.Status != nil {
		clauses = append(clauses, "health_status = "+arg(string(*filter.Status)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		pattern := "%" + q + "%"
		p := arg(pattern)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE %s OR description ILIKE %s OR slug ILIKE %s)", p, p, p))
	}
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		clauses = append(clauses, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(ts), arg(id)))
	}

	query := `SELECT` + serverColumns + ` FROM servers`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	servers, err := scanServers(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(servers) > limit {
		servers = servers[:limit]
		next = encodeCursor(servers[limit-1])
	}
	return servers, next, nil
}

// ServersDueHealthCheck returns servers never checked or checked before the
// staleness horizon, oldest first.
func (s *Postgres) ServersDueHealthCheck(ctx context.Context, olderThan time.Duration, limit int) ([]catalog.Server, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	horizon := s.clock.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx, `SELECT`+serverColumns+` FROM servers
 WHERE last_checked_at IS NULL OR last_checked_at < $1
 ORDER BY last_checked_at ASC NULLS FIRST
 LIMIT $2`, horizon, limit)
	if err != nil {
		return nil, fmt.Errorf("list due servers: %w", err)
	}
	defer rows.Close()
	return scanServers(rows)
}

// RecordHealthSample appends one health check result.
func (s *Postgres) RecordHealthSample(ctx context.Context, sample catalog.HealthSample) error {
	_, err := s.db.Exec(ctx, `INSERT INTO health_samples
 (server_id, checked_at, status, latency_ms, status_code, url_tried)
 VALUES ($1, $2, $3, $4, $5, $6)`,
		sample.ServerID, sample.CheckedAt.UTC(), string(sample.Status),
		sample.LatencyMs, sample.StatusCode, sample.URLTried,
	)
	if err != nil {
		return fmt.Errorf("record health sample: %w", err)
	}
	return nil
}

// SetServerHealth updates the denormalized health columns on the server row.
func (s *Postgres) SetServerHealth(ctx context.Context, serverID string, status catalog.HealthStatus, checkedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE servers
 SET health_status = $1, last_checked_at = $2, updated_at = $2
 WHERE id = $3`, string(status), checkedAt.UTC(), serverID)
	if err != nil {
		return fmt.Errorf("set server health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set server health %q: %w", serverID, ErrNotFound)
	}
	return nil
}

// ListHealthHistory returns the most recent samples for a server.
func (s *Postgres) ListHealthHistory(ctx context.Context, serverID string, limit int) ([]catalog.HealthSample, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.Query(ctx, `SELECT server_id, checked_at, status, latency_ms, status_code, url_tried
 FROM health_samples WHERE server_id = $1
 ORDER BY checked_at DESC LIMIT $2`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("list health history: %w", err)
	}
	defer rows.Close()

	var samples []catalog.HealthSample
	for rows.Next() {
		var (
			sample catalog.HealthSample
			status string
		)
		if err := rows.Scan(&sample.ServerID, &sample.CheckedAt, &status,
			&sample.LatencyMs, &sample.StatusCode, &sample.URLTried); err != nil {
			return nil, fmt.Errorf("scan health sample: %w", err)
		}
		sample.Status = catalog.HealthStatus(status)
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health samples: %w", err)
	}
	return samples, nil
}

const upsertRollupsSQL = `
INSERT INTO health_rollups (server_id, window_start, uptime_pct, avg_latency_ms, samples)
SELECT
    server_id,
    $1 AS window_start,
    100.0 * count(*) FILTER (WHERE status IN ('online', 'degraded')) / count(*),
    coalesce(avg(latency_ms) FILTER (WHERE status IN ('online', 'degraded')), 0),
    count(*)
FROM health_samples
WHERE checked_at >= $1 AND checked_at < $2
GROUP BY server_id
ON CONFLICT (server_id, window_start) DO UPDATE SET
    uptime_pct     = EXCLUDED.uptime_pct,
    avg_latency_ms = EXCLUDED.avg_latency_ms,
    samples        = EXCLUDED.samples`

// UpsertRollups recomputes per-server rollups for a window from raw samples.
func (s *Postgres) UpsertRollups(ctx context.Context, windowStart, windowEnd time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, upsertRollupsSQL, windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return 0, fmt.Errorf("upsert rollups: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PruneHealthSamples deletes raw samples older than the retention horizon.
func (s *Postgres) PruneHealthSamples(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM health_samples WHERE checked_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune health samples: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordToolsDetection appends one tools enumeration attempt.
func (s *Postgres) RecordToolsDetection(ctx context.Context, detection catalog.ToolsDetection) error {
	_, err := s.db.Exec(ctx, `INSERT INTO tools_detections
 (server_id, detected_at, tools, ok, error_text)
 VALUES ($1, $2, $3, $4, $5)`,
		detection.ServerID, detection.DetectedAt.UTC(), detection.Tools,
		detection.OK, detection.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("record tools detection: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.db.Close()
	return nil
}

func scanServer(row pgx.Row) (catalog.Server, error) {
	var (
		server catalog.Server
		source string
		status string
	)
	err := row.Scan(&server.ID, &server.Slug, &server.Name, &server.Description,
		&server.HomepageURL, &server.EndpointURL, &source, &server.SourceRef,
		&server.Category, &server.Tags, &server.Stars, &status,
		&server.LastChecked, &server.CreatedAt, &server.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Server{}, ErrNotFound
		}
		return catalog.Server{}, fmt.Errorf("scan server: %w", err)
	}
	server.Source = catalog.SourceName(source)
	server.HealthStatus = catalog.HealthStatus(status)
	return server, nil
}

func scanServers(rows pgx.Rows) ([]catalog.Server, error) {
	var servers []catalog.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate servers: %w", err)
	}
	return servers, nil
}
