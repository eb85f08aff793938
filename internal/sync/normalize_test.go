package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Acme Search":         "acme-search",
		"acme/search":         "acme-search",
		"  --Weird__Name--  ": "weird-name",
		"@scope/pkg-v2":       "scope-pkg-v2",
		"ALLCAPS":             "allcaps",
	}
	for in, want := range cases {
		require.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func TestNormalizeBuildsServer(t *testing.T) {
	t.Parallel()

	server, err := Normalize(catalog.SourceSmithery, catalog.SourceServer{
		Name:        "acme/search",
		DisplayName: "Acme Search",
		Description: "Search the Acme index",
		HomepageURL: "ACME.example/home/",
		EndpointURL: "https://Acme.example/mcp#frag",
		SourceRef:   "acme/search",
		Tags:        []string{"MCP", "mcp", " Search "},
		Stars:       12,
	})
	require.NoError(t, err)

	require.Equal(t, "smithery-acme-search", server.Slug)
	require.Equal(t, "Acme Search", server.Name)
	require.Equal(t, "https://acme.example/home", server.HomepageURL)
	require.Equal(t, "https://acme.example/mcp", server.EndpointURL)
	require.Equal(t, catalog.SourceSmithery, server.Source)
	require.Equal(t, []string{"mcp", "search"}, server.Tags)
	require.Equal(t, "search", server.Category)
}

func TestNormalizeRejectsNameless(t *testing.T) {
	t.Parallel()

	_, err := Normalize(catalog.SourcePulseMCP, catalog.SourceServer{Description: "no name"})
	require.Error(t, err)
}

func TestNormalizeDropsBadURLs(t *testing.T) {
	t.Parallel()

	server, err := Normalize(catalog.SourcePulseMCP, catalog.SourceServer{
		Name:        "thing",
		HomepageURL: "ftp://example.com/x",
		EndpointURL: "://broken",
	})
	require.NoError(t, err)
	require.Empty(t, server.HomepageURL)
	require.Empty(t, server.EndpointURL)
}

func TestInferCategoryFallsBackToOther(t *testing.T) {
	t.Parallel()

	require.Equal(t, "other", inferCategory("completely unrelated text"))
	require.Equal(t, "database", inferCategory("a Postgres helper"))
}
