// Package ratelimit implements a per-source token bucket gate (spec
// §4.B), adapted from the teacher's internal/net/ratelimit.Limiter:
// same lazy-create-per-key map under an RWMutex, generalized from "host"
// to "source name" and with a context-aware Acquire that surfaces
// errkind.RateCancelled instead of swallowing ctx.Err().
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sawpanic/equityrun/internal/errkind"
)

// Config is the per-source token bucket shape (spec: "Config: {rps, burst}").
type Config struct {
	RPS   float64
	Burst int
}

// Limiter gates acquisitions per named source.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	defaults Config
}

// NewLimiter builds a Limiter; defaults apply to any source not given an
// explicit Config via Configure.
func NewLimiter(defaults Config) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		defaults: defaults,
	}
}

// Configure sets (or resets) the bucket for a specific source.
func (l *Limiter) Configure(source string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[source] = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
}

func (l *Limiter) getOrCreate(source string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[source]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[source]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(l.defaults.RPS), l.defaults.Burst)
	l.limiters[source] = lim
	return lim
}

// Acquire blocks until a token for source is granted or ctx is done.
// It never silently drops: cancellation surfaces as errkind.RateCancelled.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	lim := l.getOrCreate(source)
	if err := lim.Wait(ctx); err != nil {
		return errkind.New(errkind.RateCancelled, "ratelimit.Acquire", err)
	}
	return nil
}

// Stats reports the live token level for a source, for Health()/diagnostics.
type Stats struct {
	Source          string
	RPS             float64
	Burst           int
	TokensAvailable float64
}

func (l *Limiter) Stats() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Stats, len(l.limiters))
	for source, lim := range l.limiters {
		out[source] = Stats{
			Source:          source,
			RPS:             float64(lim.Limit()),
			Burst:           lim.Burst(),
			TokensAvailable: lim.Tokens(),
		}
	}
	return out
}
