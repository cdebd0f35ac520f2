// Package search finds candidate pages for a query.
package search

import (
	"context"

	"interview-agent/internal/gate"
)

// Depth selects how thorough a provider search is.
type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthAdvanced Depth = "advanced"
)

// ErrNotConfigured is returned when no search provider key is set.
var ErrNotConfigured = gate.Fatal("search provider not configured")

// Searcher returns result URLs for a query, best match first.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, depth Depth) ([]string, error)
}

// Unconfigured is the Searcher used when no provider is configured.
type Unconfigured struct{}

// Search returns ErrNotConfigured.
func (Unconfigured) Search(ctx context.Context, query string, maxResults int, depth Depth) ([]string, error) {
	_ = ctx
	return nil, ErrNotConfigured
}
