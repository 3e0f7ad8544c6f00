// Package ratelimit provides the token bucket that throttles every outbound
// Reddit API call. One shared instance caps the global call rate across all
// job kinds; it is not a per-operation budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// minWait is the floor on retry sleeps so tiny shortfalls don't busy-spin.
const minWait = 10 * time.Millisecond

// Bucket is a mutex-guarded token bucket with lazy refill: tokens accrue as
// elapsed*refillRate (capped at capacity) and are recomputed on each attempt.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// Snapshot is a point-in-time view of the bucket for observability.
type Snapshot struct {
	Capacity   float64 `json:"capacity"`
	Tokens     float64 `json:"tokens"`
	RefillRate float64 `json:"refill_rate"`
}

// New returns a full bucket. Non-positive capacity or rate are clamped to 1
// so a misconfigured bucket degrades to "slow" rather than dividing by zero.
func New(capacity float64, refillPerSecond float64) *Bucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillPerSecond <= 0 {
		refillPerSecond = 1
	}
	return &Bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillPerSecond,
		lastRefill: time.Now(),
	}
}

// PerMinute sizes a bucket from a calls-per-minute budget:
// capacity = rate, refill = rate/60 tokens per second.
func PerMinute(callsPerMinute int) *Bucket {
	return New(float64(callsPerMinute), float64(callsPerMinute)/60.0)
}

// Consume blocks until amount tokens are available, then takes them.
//
// On each attempt it refills lazily under the lock; if short, it computes the
// minimum wait for the shortfall to accrue and sleeps at least that long
// (never less than minWait) before retrying. Cancellation aborts only the
// wait: once tokens are taken they are never returned.
func (b *Bucket) Consume(ctx context.Context, amount float64) error {
	if amount <= 0 {
		return nil
	}
	if amount > b.capacity {
		return fmt.Errorf("ratelimit: consume %.2f exceeds bucket capacity %.2f", amount, b.capacity)
	}
	for {
		b.mu.Lock()
		b.refillLocked(time.Now())
		if b.tokens >= amount {
			b.tokens -= amount
			b.mu.Unlock()
			return nil
		}
		missing := amount - b.tokens
		b.mu.Unlock()

		wait := time.Duration(missing / b.refillRate * float64(time.Second))
		if wait < minWait {
			wait = minWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// SnapshotNow refills and returns the current bucket state.
func (b *Bucket) SnapshotNow() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return Snapshot{
		Capacity:   b.capacity,
		Tokens:     b.tokens,
		RefillRate: b.refillRate,
	}
}

func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
