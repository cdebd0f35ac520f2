// Package workflow runs a directed graph of nodes over a shared state record.
// Nodes return partial updates which a merge function folds into the state;
// conditional edges choose the next node from the merged state, which is how
// bounded feedback loops are expressed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// Start is the implicit entry point.
	Start = "__start__"
	// End terminates a run.
	End = "__end__"

	defaultMaxSteps = 50
)

var (
	ErrInvalidGraph = errors.New("workflow: invalid graph")
	ErrStepLimit    = errors.New("workflow: step limit reached")
	ErrUnknownRoute = errors.New("workflow: router returned unknown route")
)

// Node computes a partial update from the current state.
type Node[S, U any] func(ctx context.Context, state S) (U, error)

// Router picks a route key from the merged state.
type Router[S any] func(state S) string

// Merge folds an update into state.
type Merge[S, U any] func(state S, update U) S

// Hooks observe node execution. Both fields are optional.
type Hooks struct {
	OnNodeStart func(ctx context.Context, node string, step int)
	OnNodeEnd   func(ctx context.Context, node string, step int, elapsed time.Duration, err error)
}

// NodeError reports the node that aborted a run.
type NodeError struct {
	Node string
	Step int
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("workflow: node %q (step %d): %v", e.Node, e.Step, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

type branch[S any] struct {
	route   Router[S]
	targets map[string]string
}

// Graph is a mutable graph definition. Build it, then Compile.
type Graph[S, U any] struct {
	nodes    map[string]Node[S, U]
	edges    map[string]string
	branches map[string]branch[S]
	merge    Merge[S, U]
	maxSteps int
	hooks    Hooks
	errs     []error
}

// New starts an empty graph that merges updates with merge.
func New[S, U any](merge Merge[S, U]) *Graph[S, U] {
	return &Graph[S, U]{
		nodes:    make(map[string]Node[S, U]),
		edges:    make(map[string]string),
		branches: make(map[string]branch[S]),
		merge:    merge,
		maxSteps: defaultMaxSteps,
	}
}

// AddNode registers a named node.
func (g *Graph[S, U]) AddNode(name string, fn Node[S, U]) *Graph[S, U] {
	switch {
	case name == "" || name == Start || name == End:
		g.errs = append(g.errs, fmt.Errorf("reserved or empty node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q has nil function", name))
	default:
		if _, dup := g.nodes[name]; dup {
			g.errs = append(g.errs, fmt.Errorf("duplicate node %q", name))
		}
		g.nodes[name] = fn
	}
	return g
}

// AddEdge adds an unconditional transition.
func (g *Graph[S, U]) AddEdge(from, to string) *Graph[S, U] {
	if _, dup := g.edges[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an edge", from))
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdge routes from a node through route. targets maps route
// keys to node names; a nil map treats the key as the node name.
func (g *Graph[S, U]) AddConditionalEdge(from string, route Router[S], targets map[string]string) *Graph[S, U] {
	if route == nil {
		g.errs = append(g.errs, fmt.Errorf("node %q has nil router", from))
		return g
	}
	if _, dup := g.branches[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q already has a conditional edge", from))
	}
	g.branches[from] = branch[S]{route: route, targets: targets}
	return g
}

// WithMaxSteps caps node executions per run.
func (g *Graph[S, U]) WithMaxSteps(n int) *Graph[S, U] {
	if n > 0 {
		g.maxSteps = n
	}
	return g
}

// WithHooks installs execution hooks.
func (g *Graph[S, U]) WithHooks(h Hooks) *Graph[S, U] {
	g.hooks = h
	return g
}

// Compile validates the graph and returns a runnable copy.
func (g *Graph[S, U]) Compile() (*Runnable[S, U], error) {
	errs := append([]error(nil), g.errs...)
	if g.merge == nil {
		errs = append(errs, errors.New("merge function is required"))
	}
	if _, ok := g.edges[Start]; !ok {
		errs = append(errs, errors.New("no entry edge from start"))
	}
	known := func(name string) bool {
		if name == End {
			return true
		}
		_, ok := g.nodes[name]
		return ok
	}
	for from, to := range g.edges {
		if from != Start && !known(from) {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
		if !known(to) {
			errs = append(errs, fmt.Errorf("edge %q -> unknown node %q", from, to))
		}
	}
	for from, b := range g.branches {
		if !known(from) || from == End {
			errs = append(errs, fmt.Errorf("conditional edge from unknown node %q", from))
		}
		if _, both := g.edges[from]; both {
			errs = append(errs, fmt.Errorf("node %q has both an edge and a conditional edge", from))
		}
		for key, to := range b.targets {
			if !known(to) {
				errs = append(errs, fmt.Errorf("route %q from %q -> unknown node %q", key, from, to))
			}
		}
	}
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, hasEdge := g.edges[name]
		_, hasBranch := g.branches[name]
		if !hasEdge && !hasBranch {
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}

	r := &Runnable[S, U]{
		nodes:    make(map[string]Node[S, U], len(g.nodes)),
		edges:    make(map[string]string, len(g.edges)),
		branches: make(map[string]branch[S], len(g.branches)),
		merge:    g.merge,
		maxSteps: g.maxSteps,
		hooks:    g.hooks,
	}
	for k, v := range g.nodes {
		r.nodes[k] = v
	}
	for k, v := range g.edges {
		r.edges[k] = v
	}
	for k, v := range g.branches {
		r.branches[k] = v
	}
	return r, nil
}

// Runnable is a validated, immutable graph. It is safe for concurrent runs.
type Runnable[S, U any] struct {
	nodes    map[string]Node[S, U]
	edges    map[string]string
	branches map[string]branch[S]
	merge    Merge[S, U]
	maxSteps int
	hooks    Hooks
}

// Run executes from Start until End. On error the state merged so far is
// returned together with the error.
func (r *Runnable[S, U]) Run(ctx context.Context, initial S) (S, error) {
	state := initial
	current := r.edges[Start]
	for step := 1; current != End; step++ {
		if step > r.maxSteps {
			return state, fmt.Errorf("%w (%d)", ErrStepLimit, r.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if r.hooks.OnNodeStart != nil {
			r.hooks.OnNodeStart(ctx, current, step)
		}
		started := time.Now()
		update, err := r.nodes[current](ctx, state)
		if r.hooks.OnNodeEnd != nil {
			r.hooks.OnNodeEnd(ctx, current, step, time.Since(started), err)
		}
		if err != nil {
			return state, &NodeError{Node: current, Step: step, Err: err}
		}
		state = r.merge(state, update)

		next, err := r.next(current, state)
		if err != nil {
			return state, err
		}
		current = next
	}
	return state, nil
}

func (r *Runnable[S, U]) next(from string, state S) (string, error) {
	if b, ok := r.branches[from]; ok {
		key := b.route(state)
		if b.targets == nil {
			if _, known := r.nodes[key]; known || key == End {
				return key, nil
			}
			return "", fmt.Errorf("%w: %q from %q", ErrUnknownRoute, key, from)
		}
		to, ok := b.targets[key]
		if !ok {
			return "", fmt.Errorf("%w: %q from %q", ErrUnknownRoute, key, from)
		}
		return to, nil
	}
	return r.edges[from], nil
}
