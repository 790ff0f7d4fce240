// -----------------------------------------------------------------------
// Token bucket rate limiting for model requests and token throughput
// -----------------------------------------------------------------------

package buckets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBucketCapacityExceeded is returned when a single acquisition asks for
// more tokens than the bucket can ever hold. This is a configuration error
// and is fatal to the run.
var ErrBucketCapacityExceeded = errors.New("requested tokens exceed bucket capacity")

// maxPollInterval caps how long a waiter sleeps before rechecking the
// bucket, so late refills from concurrent takers are observed promptly.
const maxPollInterval = 100 * time.Millisecond

// maxLogSamples bounds the in-memory level log.
const maxLogSamples = 1024

// LevelSample is one observation of the bucket level.
type LevelSample struct {
	At     time.Time
	Tokens float64
}

// TokenBucket meters a resource that refills continuously at a fixed rate
// up to a capacity. Tokens are fractional so char-based token estimates
// divide cleanly.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	log        []LevelSample
}

// NewTokenBucket creates a full bucket. refillRate is tokens per second.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// refillLocked tops the bucket up for the elapsed time. Callers hold mu.
func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
	b.sampleLocked(now)
}

func (b *TokenBucket) sampleLocked(now time.Time) {
	if len(b.log) >= maxLogSamples {
		b.log = b.log[len(b.log)/2:]
	}
	b.log = append(b.log, LevelSample{At: now, Tokens: b.tokens})
}

// Take acquires amount tokens, waiting for refills as needed. It fails
// immediately with ErrBucketCapacityExceeded when amount can never be
// satisfied, and returns the context error when cancelled mid-wait.
func (b *TokenBucket) Take(ctx context.Context, amount float64) error {
	if amount > b.capacity {
		return fmt.Errorf("%w: capacity %.2f, requested %.2f", ErrBucketCapacityExceeded, b.capacity, amount)
	}

	for {
		b.mu.Lock()
		now := time.Now()
		b.refillLocked(now)
		if b.tokens >= amount {
			b.tokens -= amount
			b.sampleLocked(now)
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((amount - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		if wait > maxPollInterval {
			wait = maxPollInterval
		}
		if wait < time.Millisecond {
			wait = time.Millisecond
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

// WaitTime estimates how long Take(amount) would block right now, without
// acquiring anything.
func (b *TokenBucket) WaitTime(amount float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := time.Since(b.lastRefill).Seconds()
	available := min(b.capacity, b.tokens+elapsed*b.refillRate)
	if available >= amount {
		return 0
	}
	return time.Duration((amount - available) / b.refillRate * float64(time.Second))
}

// Level returns the current token count after refill.
func (b *TokenBucket) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens
}

// Capacity returns the maximum token count.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}

// RefillRate returns the refill rate in tokens per second.
func (b *TokenBucket) RefillRate() float64 {
	return b.refillRate
}

// Log returns the recorded level samples, oldest first.
func (b *TokenBucket) Log() []LevelSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LevelSample, len(b.log))
	copy(out, b.log)
	return out
}
