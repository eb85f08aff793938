package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

type stubIDs struct{ id string }

func (s stubIDs) NewID() (string, error) { return s.id, nil }

type stubClock struct{ now time.Time }

func (s stubClock) Now() time.Time { return s.now }

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewPostgresWithDB(mock, stubIDs{id: "11111111-1111-1111-1111-111111111111"}, stubClock{now: now}, nil)
	return s, mock
}

func TestPostgresUpsertServerInsert(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO servers`).
		WithArgs(
			"11111111-1111-1111-1111-111111111111", "acme-search", "Acme Search",
			"search things", "https://acme.example", "https://acme.example/mcp",
			"smithery", "acme/search", "search",
			[]string{"mcp"}, 12, "unknown", pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created"}).
			AddRow("11111111-1111-1111-1111-111111111111", true))

	id, created, err := s.UpsertServer(context.Background(), catalog.Server{
		Slug:        "acme-search",
		Name:        "Acme Search",
		Description: "search things",
		HomepageURL: "https://acme.example",
		EndpointURL: "https://acme.example/mcp",
		Source:      catalog.SourceSmithery,
		SourceRef:   "acme/search",
		Category:    "search",
		Tags:        []string{"mcp"},
		Stars:       12,
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetServerNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM servers WHERE id`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "slug", "name", "description", "homepage_url", "endpoint_url",
			"source", "source_ref", "category", "tags", "stars", "health_status",
			"last_checked_at", "created_at", "updated_at",
		}))

	_, err := s.GetServer(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetServerHealthMissingRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE servers`).
		WithArgs("online", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetServerHealth(context.Background(), "missing", catalog.HealthOnline, time.Now())
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertRollups(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	start := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	mock.ExpectExec(`INSERT INTO health_rollups`).
		WithArgs(start, end).
		WillReturnResult(pgxmock.NewResult("INSERT", 4))

	n, err := s.UpsertRollups(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPruneHealthSamples(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	horizon := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM health_samples`).
		WithArgs(horizon).
		WillReturnResult(pgxmock.NewResult("DELETE", 17))

	n, err := s.PruneHealthSamples(context.Background(), horizon)
	require.NoError(t, err)
	require.EqualValues(t, 17, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListServersInvalidCursor(t *testing.T) {
	t.Parallel()

	s, _ := newMockStore(t)
	_, _, err := s.ListServers(context.Background(), catalog.ServerFilter{}, "not-base64!!", 10)
	require.ErrorIs(t, err, ErrInvalidCursor)
}
