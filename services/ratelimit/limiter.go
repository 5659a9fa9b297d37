// Package ratelimit provides sliding-window admission control per identifier.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
)

// Result represents the outcome of an admission decision.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// window holds the pruned request timestamps for one identifier. Mutation for
// a given identifier is serialized on its own mutex so concurrent bursts
// cannot exceed the limit.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	lastSeen   time.Time
}

// Limiter is a sliding-window rate limiter over a trailing window W with
// limit N per identifier.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window

	limit         int
	windowSize    time.Duration
	idleRetention time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a Limiter from the rate-limit configuration.
func NewLimiter(cfg config.RateLimitConfig, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		windows:       make(map[string]*window),
		limit:         cfg.Limit,
		windowSize:    cfg.Window,
		idleRetention: cfg.IdleRetention,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow decides admission for the identifier. Allowed iff the count of
// timestamps within [now-W, now) is below the limit; on allow, the new
// timestamp is recorded. RetryAfter on denial is the time remaining until the
// oldest in-window timestamp exits the window.
func (l *Limiter) Allow(identifier string) Result {
	w := l.getWindow(identifier)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeen = now
	w.timestamps = prune(w.timestamps, now.Add(-l.windowSize))

	if len(w.timestamps) >= l.limit {
		oldest := w.timestamps[0]
		retryAfter := oldest.Add(l.windowSize).Sub(now)
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    oldest.Add(l.windowSize),
			RetryAfter: retryAfter,
		}
	}

	w.timestamps = append(w.timestamps, now)
	resetAt := w.timestamps[0].Add(l.windowSize)
	return Result{
		Allowed:   true,
		Remaining: l.limit - len(w.timestamps),
		ResetAt:   resetAt,
	}
}

// ReapIdle removes windows not seen within the idle retention period and
// returns the number removed.
func (l *Limiter) ReapIdle() int {
	cutoff := l.now().Add(-l.idleRetention)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// StartReaper runs periodic reaping of idle windows until ctx is cancelled.
func (l *Limiter) StartReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("started rate limit reaper", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if removed := l.ReapIdle(); removed > 0 {
				l.logger.Debug("reaped idle rate limit windows", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			l.logger.Info("stopping rate limit reaper")
			return
		}
	}
}

// getWindow returns the identifier's window, creating it if needed. The map
// lock is held only for lookup/insert, never across a window's own mutex in
// Allow, so distinct identifiers do not serialize on each other.
func (l *Limiter) getWindow(identifier string) *window {
	l.mu.RLock()
	w, ok := l.windows[identifier]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[identifier]; ok {
		return w
	}
	w = &window{}
	l.windows[identifier] = w
	return w
}

// prune drops timestamps at or before the cutoff, keeping order.
func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[idx:]...)
}
