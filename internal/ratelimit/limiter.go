// Package ratelimit implements the gateway's optional per-agent,
// per-server rate limiter guarding execute_tool (SPEC_FULL.md §4.4,
// "supplemented feature" — spec.md neither requires nor excludes it).
// Adapted from the teacher's internal/domain/ratelimit GCRA interface and
// internal/adapter/outbound/memory.MemoryRateLimiter's Theoretical Arrival
// Time bookkeeping, narrowed from a general (keyType, value) key space down
// to the gateway's own (agent, server) pair.
package ratelimit

import (
	"sync"
	"time"
)

// Config sets the token-bucket shape for one (agent, server) pair. Rate is
// expressed in events per Period; Burst caps how many may fire at once.
type Config struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// Result is the outcome of a Limiter.Allow check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces Config against a GCRA-style Theoretical Arrival Time
// (TAT) per key, same algorithm as the teacher's MemoryRateLimiter, with
// the same background-cleanup shape to bound memory growth from an
// unbounded set of (agent, server) pairs.
type Limiter struct {
	cfg Config

	mu    sync.Mutex
	cells map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Limiter. A zero-value Rate disables limiting: every Allow
// call returns Allowed: true without bookkeeping, so the gateway can wire a
// Limiter unconditionally and flip it on purely via configuration.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:    cfg,
		cells:  make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
}

// StartCleanup evicts TAT entries older than maxAge every interval, so a
// long-running gateway doesn't accumulate one entry per agent forever.
func (l *Limiter) StartCleanup(interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case now := <-ticker.C:
				l.mu.Lock()
				for k, tat := range l.cells {
					if now.Sub(tat) > maxAge {
						delete(l.cells, k)
					}
				}
				l.mu.Unlock()
			}
		}
	}()
}

// Stop ends the cleanup goroutine, if started.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Size reports the number of distinct (agent, server) keys currently
// tracked, for cleanup tests.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cells)
}

// Allow reports whether a call for (agent, server) may proceed now.
func (l *Limiter) Allow(agent, server string) Result {
	if l.cfg.Rate <= 0 {
		return Result{Allowed: true}
	}
	key := agent + "\x00" + server

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	rate := l.cfg.Rate
	emission := l.cfg.Period / time.Duration(rate)
	burst := l.cfg.Burst
	if burst <= 0 {
		burst = rate
	}
	burstOffset := time.Duration(burst-1) * emission

	tat, ok := l.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}
	allowAt := tat.Add(-burstOffset)
	if now.Before(allowAt) {
		return Result{Allowed: false, RetryAfter: allowAt.Sub(now)}
	}

	l.cells[key] = tat.Add(emission)
	return Result{Allowed: true}
}
