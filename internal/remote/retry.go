package remote

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/zkorenberg/tboard/internal/logger"
)

// RetryPolicy governs how many times, and with what backoff, the adapter
// retries a Handler call that returned an error before giving up; the
// adapter then reports an empty response back to the board.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterFactor   float64
}

// DefaultRetryPolicy returns a sensible default: 3 attempts, 1s initial
// backoff doubling up to 5 minutes, with 10% jitter.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Minute,
		BackoffFactor:  2.0,
		JitterFactor:   0.1,
	}
}

// CalculateBackoff returns the backoff duration before the given attempt
// number (0-indexed), with exponential growth capped at MaxBackoff and
// symmetric jitter applied on top.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialBackoff
	}

	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.JitterFactor > 0 {
		jitter := backoff * p.JitterFactor * (rand.Float64()*2 - 1)
		backoff += jitter
	}
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// ShouldRetry reports whether another attempt is allowed given how many
// have already been made.
func (p *RetryPolicy) ShouldRetry(attemptsMade int) bool {
	return attemptsMade < p.MaxAttempts
}

// RetryingHandler wraps a downstream call that can fail with an error into
// a Handler, retrying per policy before giving up and returning nil, which
// the adapter reports back to the board as an empty response.
func RetryingHandler(policy *RetryPolicy, fn func(ctx context.Context, message string) ([]byte, error)) Handler {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return func(ctx context.Context, message string) []byte {
		var lastErr error
		for attempt := 0; ; attempt++ {
			resp, err := fn(ctx, message)
			if err == nil {
				return resp
			}
			lastErr = err
			if !policy.ShouldRetry(attempt + 1) {
				break
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(policy.CalculateBackoff(attempt)):
			}
		}
		logger.Error().Err(lastErr).Str("message", message).Msg("remote adapter: handler exhausted retries")
		return nil
	}
}
