// Package ratelimit paces outbound requests: a ticker-based Limiter with
// jitter for steady request rates, and randomized Range pauses.
package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Limiter controls the rate and timing of operations, incorporating optional jitter.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
	ch       <-chan time.Time
}

// NewLimiter creates a new limiter with the given requests per second (rps)
// and jitter factor. Jitter must be between 0.0 and 1.0.
// If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{
			jitter: jitter,
		}
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)

	return &Limiter{
		ticker:   ticker,
		jitter:   jitter,
		interval: interval,
		ch:       ticker.C,
	}
}

// Wait blocks until the next tick, plus a random extra delay of up to
// jitter*interval, or until ctx is done. A non-blocking limiter returns
// immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
	}

	// Ticks cannot come early, so only the positive half of the jitter
	// window delays the caller.
	extra := time.Duration(float64(l.interval) * l.jitter * (rand.Float64()*2 - 1))
	if extra <= 0 {
		return nil
	}
	return Sleep(ctx, extra)
}

// Stop releases the limiter's ticker. It is safe on a nil Limiter.
func (l *Limiter) Stop() {
	if l != nil && l.ticker != nil {
		l.ticker.Stop()
	}
}

// Range bounds a randomized pause. The zero Range disables the pause.
type Range struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// Enabled reports whether the range produces a non-zero pause.
func (r Range) Enabled() bool {
	return r.Max > 0
}

// Pick returns a duration drawn uniformly from [Min, Max]. An inverted range
// collapses to Max.
func (r Range) Pick() time.Duration {
	if !r.Enabled() {
		return 0
	}
	lo := r.Min
	if lo < 0 {
		lo = 0
	}
	if lo >= r.Max {
		return r.Max
	}
	return lo + time.Duration(rand.Int63n(int64(r.Max-lo)+1))
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pause sleeps for a random duration picked from r.
func Pause(ctx context.Context, r Range) error {
	return Sleep(ctx, r.Pick())
}
