package ai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietBreaker(failures, successes int, openTimeout time.Duration, now func() time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(failures, successes, openTimeout)
	cb.logf = func(string, ...any) {}
	cb.now = now
	return cb
}

func TestCircuitBreakerTransitions(t *testing.T) {
	clock := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	cb := quietBreaker(3, 2, time.Minute, func() time.Time { return clock })

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	clock = clock.Add(61 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())

	_, failures, _ := cb.Metrics()
	assert.Zero(t, failures)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	cb := quietBreaker(1, 2, time.Minute, func() time.Time { return clock })

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := quietBreaker(2, 1, time.Minute, time.Now)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{context.Canceled, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("Overloaded"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("401 Unauthorized"), false},
		{errors.New("400 invalid request"), false},
		{errors.New("something odd"), false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetriableError(tt.err))
		})
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           time.Second,
	}
}

func TestRetryWithBackoffRecovers(t *testing.T) {
	var calls atomic.Int32
	err := retryWithBackoff(context.Background(), fastRetry(), nil, "test", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryWithBackoffGivesUp(t *testing.T) {
	var calls atomic.Int32
	err := retryWithBackoff(context.Background(), fastRetry(), nil, "test", func(context.Context) error {
		calls.Add(1)
		return errors.New("502 bad gateway")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	cb := quietBreaker(1, 1, time.Minute, time.Now)
	err := retryWithBackoff(context.Background(), fastRetry(), cb, "test", func(context.Context) error {
		calls.Add(1)
		return errors.New("401 Unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, CircuitClosed, cb.State(), "auth failures do not trip the breaker")
}

func TestRetryWithBackoffFailsFastWhenOpen(t *testing.T) {
	cb := quietBreaker(1, 1, time.Hour, time.Now)
	cb.RecordFailure()

	called := false
	err := retryWithBackoff(context.Background(), fastRetry(), cb, "test", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestRetryWithBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	done := make(chan error, 1)
	go func() {
		done <- retryWithBackoff(ctx, cfg, nil, "test", func(context.Context) error {
			return errors.New("503 service unavailable")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop ignored cancellation")
	}
}
