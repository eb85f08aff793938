package sync

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

const maxSlugLen = 80

// categoryKeywords maps listing text fragments to catalog categories. First
// match wins, checked in declaration order.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"search", []string{"search", "lookup", "query engine"}},
	{"files", []string{"file", "filesystem", "storage", "drive"}},
	{"database", []string{"database", "sql", "postgres", "mysql", "sqlite", "mongo"}},
	{"development", []string{"github", "gitlab", "code", "repository", "developer"}},
	{"browser", []string{"browser", "playwright", "puppeteer", "scrape", "crawl"}},
	{"communication", []string{"slack", "email", "discord", "telegram", "chat"}},
	{"ai", []string{"llm", "embedding", "model", "agent"}},
	{"data", []string{"weather", "finance", "stocks", "news", "api"}},
}

// Normalize converts an upstream listing entry into a catalog Server ready
// for upsert. Entries without a usable name are rejected.
func Normalize(source catalog.SourceName, entry catalog.SourceServer) (catalog.Server, error) {
	name := strings.TrimSpace(entry.DisplayName)
	if name == "" {
		name = strings.TrimSpace(entry.Name)
	}
	if name == "" {
		return catalog.Server{}, fmt.Errorf("entry from %s has no name", source)
	}

	slug := Slugify(string(source) + "-" + firstNonEmpty(entry.Name, name))
	if slug == "" {
		return catalog.Server{}, fmt.Errorf("entry %q produced an empty slug", name)
	}

	server := catalog.Server{
		Slug:        slug,
		Name:        name,
		Description: strings.TrimSpace(entry.Description),
		HomepageURL: canonicalURL(entry.HomepageURL),
		EndpointURL: canonicalURL(entry.EndpointURL),
		Source:      source,
		SourceRef:   strings.TrimSpace(entry.SourceRef),
		Category:    entry.Category,
		Tags:        normalizeTags(entry.Tags),
		Stars:       entry.Stars,
	}
	if server.Category == "" {
		server.Category = inferCategory(server.Name + " " + server.Description)
	}
	return server, nil
}

// Slugify lowercases and reduces s to [a-z0-9-], collapsing runs of other
// characters into single dashes.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}

// canonicalURL lowercases the host, defaults the scheme to https, and strips
// trailing slashes and fragments. Unparseable values come back empty.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func inferCategory(text string) string {
	text = strings.ToLower(text)
	for _, entry := range categoryKeywords {
		for _, word := range entry.words {
			if strings.Contains(text, word) {
				return entry.category
			}
		}
	}
	return "other"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
