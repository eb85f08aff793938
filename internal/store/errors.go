// Package store persists catalog data in Postgres, with an in-memory
// implementation for tests and local development.
package store

import "errors"

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrInvalidCursor = errors.New("store: invalid cursor")
)
