// Package concurrency provides the per-provider concurrency caps described
// in spec §4.2: every outbound upstream call acquires its provider's slot
// before sending and releases it on completion, blocking (never failing)
// once the cap is reached.
package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/modelbridge/gateway/internal/modelregistry"
)

// Config maps each provider to its fixed semaphore capacity.
type Config struct {
	Capacities map[modelregistry.Provider]int64
}

// DefaultConfig returns the capacities fixed by spec §4.2.
func DefaultConfig() Config {
	return Config{Capacities: map[modelregistry.Provider]int64{
		modelregistry.ProviderOpenAI:    8,
		modelregistry.ProviderGoogle:    6,
		modelregistry.ProviderAnthropic: 6,
		modelregistry.ProviderXAI:       4,
	}}
}

// Limiter holds one weighted semaphore per provider.
type Limiter struct {
	sems map[modelregistry.Provider]*semaphore.Weighted
}

// New builds a Limiter from the given capacities.
func New(cfg Config) *Limiter {
	sems := make(map[modelregistry.Provider]*semaphore.Weighted, len(cfg.Capacities))
	for p, n := range cfg.Capacities {
		if n <= 0 {
			n = 1
		}
		sems[p] = semaphore.NewWeighted(n)
	}
	return &Limiter{sems: sems}
}

// Acquire blocks until a slot for the provider is available or ctx is
// cancelled. It is FIFO by construction of golang.org/x/sync/semaphore.
func (l *Limiter) Acquire(ctx context.Context, provider modelregistry.Provider) (release func(), err error) {
	sem, ok := l.sems[provider]
	if !ok {
		// Unknown providers get an unbounded no-op slot rather than a panic;
		// the registry is the source of truth for which providers exist.
		return func() {}, nil
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
