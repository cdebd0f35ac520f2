package search

import (
	"context"

	"interview-agent/internal/gate"
)

// Gated sends every search through a concurrency gate.
type Gated struct {
	Base Searcher
	Gate *gate.Gate
}

// NewGated wraps base.
func NewGated(base Searcher, g *gate.Gate) *Gated {
	return &Gated{Base: base, Gate: g}
}

// Search acquires a gate slot, retrying overloaded calls.
func (s *Gated) Search(ctx context.Context, query string, maxResults int, depth Depth) ([]string, error) {
	return gate.Do(ctx, s.Gate, func(ctx context.Context) ([]string, error) {
		return s.Base.Search(ctx, query, maxResults, depth)
	})
}

var _ Searcher = (*Gated)(nil)
