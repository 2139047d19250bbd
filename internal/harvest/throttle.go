package harvest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Minimum inter-call intervals for the shipped providers. The gate is
// process-wide: every adapter instance for a provider shares one limiter,
// so the wall-clock gap between any two dispatched calls honours the
// interval regardless of how many harvests are in flight.
const (
	EbookSearchInterval = 300 * time.Millisecond
	ASINInterval        = 1100 * time.Millisecond
)

// Gates owns the per-provider throttle limiters. One Gates value is
// constructed at startup and handed to the dispatcher; it lives as long
// as the process.
type Gates struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGates creates an empty gate registry.
func NewGates() *Gates {
	return &Gates{limiters: make(map[string]*rate.Limiter)}
}

// Register installs a gate for the named provider. A zero interval means
// the provider is unthrottled. Registering twice replaces the gate.
func (g *Gates) Register(name string, minInterval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if minInterval <= 0 {
		delete(g.limiters, name)
		return
	}
	g.limiters[name] = rate.NewLimiter(rate.Every(minInterval), 1)
}

// Wait blocks until the named provider may be called again. Unregistered
// providers pass through immediately. Cancellation aborts the wait.
func (g *Gates) Wait(ctx context.Context, name string) error {
	g.mu.Lock()
	limiter := g.limiters[name]
	g.mu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
