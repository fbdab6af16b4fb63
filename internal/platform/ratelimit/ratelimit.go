// Package ratelimit provides a serialized minimum-interval limiter for a
// single upstream. Unlike a token bucket it guarantees acquisitions are
// spaced, not merely averaged: two concurrent callers never both proceed
// within the interval of each other.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter serializes callers so successive Acquire returns are at least
// minInterval apart. The zero value (or a zero interval) is a no-op limiter.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Limiter enforcing the given minimum inter-request interval
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		interval: minInterval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Acquire blocks until the caller's reserved slot arrives, then returns.
// Slots are handed out under a mutex so concurrent callers are serialized.
// Cancellation aborts the wait and returns ctx.Err(); the slot stays
// reserved, which only delays the next caller by one interval.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := l.now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		return l.sleep(ctx, wait)
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
