// Package gate bounds concurrent calls to a rate-limited upstream and retries
// overloaded calls with exponential backoff.
package gate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Config controls gate capacity and retry behavior.
type Config struct {
	MaxConcurrent  int
	MaxRetries     int
	InitialBackoff time.Duration
	// CallTimeout bounds each attempt; zero disables the per-call deadline.
	CallTimeout time.Duration

	// Adaptive enables limit reduction under sustained overload.
	Adaptive          bool
	OverloadThreshold int
	OverloadWindow    time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     3,
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		CallTimeout:       120 * time.Second,
		OverloadThreshold: 3,
		OverloadWindow:    30 * time.Second,
	}
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClassifier replaces the default error classifier.
func WithClassifier(c Classifier) Option {
	return func(g *Gate) {
		if c != nil {
			g.classify = c
		}
	}
}

// WithClock sets the clock used for the overload window.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSleep replaces the backoff wait. The function must return ctx.Err()
// when the context ends first.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// Gate is a counting semaphore with retry. It is safe for concurrent use.
type Gate struct {
	cfg      Config
	classify Classifier
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	limit         int
	inFlight      int
	waiters       []chan struct{}
	overloadCount int
	windowStart   time.Time

	stats counters
}

// Release returns a held slot. Calling it more than once is a no-op.
type Release func()

// New builds a Gate. Non-positive settings fall back to DefaultConfig values.
func New(cfg Config, opts ...Option) *Gate {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff < 0 {
		cfg.InitialBackoff = 0
	}
	if cfg.OverloadThreshold <= 0 {
		cfg.OverloadThreshold = def.OverloadThreshold
	}
	if cfg.OverloadWindow <= 0 {
		cfg.OverloadWindow = def.OverloadWindow
	}
	g := &Gate{
		cfg:      cfg,
		classify: ClassifyError,
		now:      time.Now,
		sleep:    sleepContext,
		limit:    cfg.MaxConcurrent,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.stats.limit.Store(int64(g.limit))
	return g
}

// Config returns the effective configuration.
func (g *Gate) Config() Config {
	return g.cfg
}

// Acquire blocks until a slot is free or ctx ends. Waiters are served in
// arrival order.
func (g *Gate) Acquire(ctx context.Context) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	if len(g.waiters) == 0 && g.inFlight < g.limit {
		g.takeLocked()
		g.mu.Unlock()
		return g.releaser(), nil
	}
	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.stats.waiting.Store(int64(len(g.waiters)))
	g.mu.Unlock()

	select {
	case <-ready:
		return g.releaser(), nil
	case <-ctx.Done():
		g.mu.Lock()
		queued := g.removeWaiterLocked(ready)
		g.mu.Unlock()
		if !queued {
			// Granted between ctx.Done and the lock; hand the slot back.
			g.release()
		}
		return nil, ctx.Err()
	}
}

// SetLimit changes the current limit, clamped to [1, MaxConcurrent]. Slots
// already held are not revoked.
func (g *Gate) SetLimit(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setLimitLocked(n)
}

// Execute acquires a slot, runs op with retry and releases the slot on every
// exit path.
func (g *Gate) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	g.stats.total.Add(1)
	release, err := g.Acquire(ctx)
	if err != nil {
		g.stats.failed.Add(1)
		return err
	}
	defer release()
	return g.run(ctx, op)
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, g *Gate, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeFatal
)

type attemptResult struct {
	outcome outcome
	err     error
}

func (g *Gate) run(ctx context.Context, op func(ctx context.Context) error) error {
	overloaded := false
	for attempt := 0; ; attempt++ {
		res := g.attempt(ctx, op)
		switch res.outcome {
		case outcomeSuccess:
			g.stats.successful.Add(1)
			if attempt == 0 {
				g.restoreLimit()
			}
			return nil
		case outcomeRetryable:
			if !overloaded {
				overloaded = true
				g.stats.overloaded.Add(1)
			}
			g.recordOverload()
			if attempt >= g.cfg.MaxRetries {
				g.stats.failed.Add(1)
				return &ExhaustedError{Attempts: attempt + 1, Err: res.err}
			}
			delay := g.backoff(attempt)
			log.Printf("gate: overloaded attempt=%d/%d backoff=%s err=%v", attempt+1, g.cfg.MaxRetries+1, delay, res.err)
			if err := g.sleep(ctx, delay); err != nil {
				g.stats.failed.Add(1)
				return err
			}
			g.stats.retries.Add(1)
		default:
			g.stats.failed.Add(1)
			return res.err
		}
	}
}

func (g *Gate) attempt(ctx context.Context, op func(ctx context.Context) error) attemptResult {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
	}
	defer cancel()

	err := op(callCtx)
	if err == nil {
		return attemptResult{outcome: outcomeSuccess}
	}
	if ctx.Err() != nil {
		return attemptResult{outcome: outcomeFatal, err: err}
	}
	if callCtx.Err() == context.DeadlineExceeded {
		return attemptResult{outcome: outcomeFatal, err: fmt.Errorf("%w after %s: %w", ErrCallTimeout, g.cfg.CallTimeout, err)}
	}
	if g.classify(err) == KindOverload {
		return attemptResult{outcome: outcomeRetryable, err: err}
	}
	return attemptResult{outcome: outcomeFatal, err: err}
}

// backoff returns InitialBackoff * 2^attempt.
func (g *Gate) backoff(attempt int) time.Duration {
	return g.cfg.InitialBackoff * time.Duration(1<<uint(attempt))
}

func (g *Gate) releaser() Release {
	var once sync.Once
	return func() {
		once.Do(g.release)
	}
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
	g.stats.inFlight.Store(int64(g.inFlight))
	g.grantLocked()
}

func (g *Gate) takeLocked() {
	g.inFlight++
	g.stats.inFlight.Store(int64(g.inFlight))
	if int64(g.inFlight) > g.stats.peak.Load() {
		g.stats.peak.Store(int64(g.inFlight))
	}
}

func (g *Gate) grantLocked() {
	for len(g.waiters) > 0 && g.inFlight < g.limit {
		next := g.waiters[0]
		g.waiters[0] = nil
		g.waiters = g.waiters[1:]
		g.takeLocked()
		close(next)
	}
	g.stats.waiting.Store(int64(len(g.waiters)))
}

func (g *Gate) removeWaiterLocked(ready chan struct{}) bool {
	for i, w := range g.waiters {
		if w == ready {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			g.stats.waiting.Store(int64(len(g.waiters)))
			return true
		}
	}
	return false
}

func (g *Gate) setLimitLocked(n int) {
	if n < 1 {
		n = 1
	}
	if n > g.cfg.MaxConcurrent {
		n = g.cfg.MaxConcurrent
	}
	if n == g.limit {
		return
	}
	log.Printf("gate: limit %d -> %d", g.limit, n)
	g.limit = n
	g.stats.limit.Store(int64(n))
	g.grantLocked()
}

// recordOverload counts an overload event in the current window. Reaching the
// threshold lowers the limit by one and starts a fresh window.
func (g *Gate) recordOverload() {
	if !g.cfg.Adaptive {
		return
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.windowStart.IsZero() || now.Sub(g.windowStart) > g.cfg.OverloadWindow {
		g.windowStart = now
		g.overloadCount = 0
	}
	g.overloadCount++
	if g.overloadCount >= g.cfg.OverloadThreshold {
		g.setLimitLocked(g.limit - 1)
		g.overloadCount = 0
		g.windowStart = time.Time{}
	}
}

func (g *Gate) restoreLimit() {
	if !g.cfg.Adaptive {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.limit < g.cfg.MaxConcurrent {
		g.setLimitLocked(g.limit + 1)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
