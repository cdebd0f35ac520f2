package llm

import (
	"context"

	"interview-agent/internal/gate"
)

// Gated sends every call of the wrapped Generator through a concurrency gate.
type Gated struct {
	Base Generator
	Gate *gate.Gate
}

// NewGated wraps base.
func NewGated(base Generator, g *gate.Gate) *Gated {
	return &Gated{Base: base, Gate: g}
}

// Generate acquires a gate slot, retrying overloaded calls.
func (c *Gated) Generate(ctx context.Context, req Request) (string, error) {
	return gate.Do(ctx, c.Gate, func(ctx context.Context) (string, error) {
		return c.Base.Generate(ctx, req)
	})
}

var _ Generator = (*Gated)(nil)
