// Package ratelimit spaces outbound requests per remote host class.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/finharvest/filing-harvester/internal/telemetry"
)

// Host classes shared across the harvester. The SEC limit is per host,
// not per caller, so every subsystem that touches data.sec.gov or
// www.sec.gov must wait on the same limiter instance.
const (
	ClassEdgarData     = "edgar-data"
	ClassEdgarArchives = "edgar-archives"
	ClassIR            = "ir"
)

// Limiter manages one token bucket per host class.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rates    map[string]rate.Limit
	fallback rate.Limit
}

// Config holds per-class request rates in requests per second.
type Config struct {
	EdgarRPS   float64
	IRRPS      float64
	DefaultRPS float64
}

// New creates a Limiter with one bucket per configured class.
func New(cfg Config) *Limiter {
	fallback := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		fallback = rate.Inf
	}
	rates := map[string]rate.Limit{}
	if cfg.EdgarRPS > 0 {
		rates[ClassEdgarData] = rate.Limit(cfg.EdgarRPS)
		rates[ClassEdgarArchives] = rate.Limit(cfg.EdgarRPS)
	}
	if cfg.IRRPS > 0 {
		rates[ClassIR] = rate.Limit(cfg.IRRPS)
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rates:    rates,
		fallback: fallback,
	}
}

// Wait blocks until a slot is available for the host class. It fails
// only when the context is canceled; rate limiting itself never errors.
func (l *Limiter) Wait(ctx context.Context, hostClass string) error {
	limiter := l.limiterFor(hostClass)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait %s: %w", hostClass, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(hostClass, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(hostClass string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[hostClass]; ok {
		return limiter
	}
	limit, ok := l.rates[hostClass]
	if !ok {
		limit = l.fallback
	}
	// Burst of one keeps calls strictly spaced at the minimum interval.
	limiter := rate.NewLimiter(limit, 1)
	l.limiters[hostClass] = limiter
	return limiter
}
