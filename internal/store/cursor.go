package store

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

// List pages are keyset-ordered by (created_at DESC, id DESC). The cursor
// encodes the last row of the previous page.
func encodeCursor(s catalog.Server) string {
	raw := s.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + s.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return ts, parts[1], nil
}
