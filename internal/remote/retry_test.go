package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zkorenberg/tboard/internal/logger"
)

func init() {
	logger.Init("error", false)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 1*time.Second, policy.InitialBackoff)
	assert.Equal(t, 5*time.Minute, policy.MaxBackoff)
	assert.Equal(t, 2.0, policy.BackoffFactor)
	assert.Equal(t, 0.1, policy.JitterFactor)
}

func TestRetryPolicy_CalculateBackoff(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     1 * time.Minute,
		BackoffFactor:  2.0,
		JitterFactor:   0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{10, 1 * time.Minute},
	}

	for _, tt := range tests {
		backoff := policy.CalculateBackoff(tt.attempt)
		assert.Equal(t, tt.expected, backoff, "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_CalculateBackoff_WithJitter(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     1 * time.Minute,
		BackoffFactor:  2.0,
		JitterFactor:   0.5,
	}

	for i := 0; i < 10; i++ {
		backoff := policy.CalculateBackoff(1)
		assert.GreaterOrEqual(t, backoff, 1*time.Second)
		assert.LessOrEqual(t, backoff, 3*time.Second)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 3}

	tests := []struct {
		attemptsMade int
		expected     bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, false},
		{5, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, policy.ShouldRetry(tt.attemptsMade), "attemptsMade: %d", tt.attemptsMade)
	}
}

func TestRetryingHandler_SucceedsFirstTry(t *testing.T) {
	calls := 0
	policy := &RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 2}

	handler := RetryingHandler(policy, func(ctx context.Context, message string) ([]byte, error) {
		calls++
		return []byte("ok:" + message), nil
	})

	resp := handler(context.Background(), "hello")

	assert.Equal(t, "ok:hello", string(resp))
	assert.Equal(t, 1, calls)
}

func TestRetryingHandler_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	policy := &RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 2}

	handler := RetryingHandler(policy, func(ctx context.Context, message string) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient failure")
		}
		return []byte("recovered"), nil
	})

	resp := handler(context.Background(), "hello")

	assert.Equal(t, "recovered", string(resp))
	assert.Equal(t, 3, calls)
}

func TestRetryingHandler_ExhaustsRetries(t *testing.T) {
	calls := 0
	policy := &RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 2}

	handler := RetryingHandler(policy, func(ctx context.Context, message string) ([]byte, error) {
		calls++
		return nil, errors.New("permanent failure")
	})

	resp := handler(context.Background(), "hello")

	assert.Nil(t, resp)
	assert.Equal(t, 2, calls)
}

func TestRetryingHandler_NilPolicyUsesDefault(t *testing.T) {
	handler := RetryingHandler(nil, func(ctx context.Context, message string) ([]byte, error) {
		return []byte("ok"), nil
	})

	resp := handler(context.Background(), "hello")
	assert.Equal(t, "ok", string(resp))
}

func TestRetryingHandler_ContextCancelled(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffFactor: 2}

	ctx, cancel := context.WithCancel(context.Background())

	handler := RetryingHandler(policy, func(ctx context.Context, message string) ([]byte, error) {
		return nil, errors.New("fail")
	})

	cancel()
	resp := handler(ctx, "hello")

	assert.Nil(t, resp)
}
