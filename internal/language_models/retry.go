package language_models

import (
	"context"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryConfig defines backoff behavior for transient adapter failures.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, first try included
	MaxAttempts int

	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration

	// BackoffFactor multiplies the backoff after each retry
	BackoffFactor float64

	// MaxBackoff caps the wait between retries
	MaxBackoff time.Duration

	// JitterFraction randomizes each wait by +-this fraction
	JitterFraction float64
}

// NewDefaultRetryConfig returns the standard policy: 5 attempts starting at
// 1 s, doubling, capped at 32 s, with 20% jitter.
func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
		MaxBackoff:     32 * time.Second,
		JitterFraction: 0.2,
	}
}

// Backoff computes the wait before retry number attempt (0-based), with
// jitter applied.
func (c *RetryConfig) Backoff(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= c.BackoffFactor
	}
	if max := float64(c.MaxBackoff); backoff > max {
		backoff = max
	}
	if c.JitterFraction > 0 {
		backoff *= 1 + c.JitterFraction*(2*rand.Float64()-1)
	}
	return time.Duration(backoff)
}

// CallWithRetry runs fn until it succeeds, fails permanently, exhausts the
// attempt budget, or the context is cancelled. The last error is returned
// unmodified so callers can classify it.
func CallWithRetry[T any](ctx context.Context, cfg *RetryConfig, logger arbor.ILogger, name string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return result, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		backoff := cfg.Backoff(attempt)
		logger.Warn().
			Str("call", name).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Transient failure, retrying after backoff")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return result, err
}
