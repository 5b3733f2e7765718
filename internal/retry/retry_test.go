package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"structured marker", &RateLimitError{Err: errors.New("429")}, true},
		{"wrapped marker", fmt.Errorf("search: %w", &RateLimitError{Err: errors.New("429")}), true},
		{"github primary limit", &github.RateLimitError{}, true},
		{"github abuse limit", &github.AbuseRateLimitError{}, true},
		{"message fallback", errors.New("API rate limit exceeded for user"), true},
		{"message fallback mixed case", errors.New("Rate Limit hit"), true},
		{"plain failure", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimit(tt.err))
		})
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	var sleeps []time.Duration
	opts := Options{
		InitialDelay: time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}

	calls := 0
	result, err := Do(context.Background(), opts, func() (string, error) {
		calls++
		if calls < 5 {
			return "", &RateLimitError{Err: errors.New("throttled")}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	}, sleeps, "delay doubles on every retry")
}

func TestDoExhaustsBudget(t *testing.T) {
	sleeps := 0
	opts := Options{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps++
			return nil
		},
	}

	calls := 0
	_, err := Do(context.Background(), opts, func() (int, error) {
		calls++
		return 0, &RateLimitError{Err: errors.New("throttled")}
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, sleeps, "no sleep after the final attempt")
}

func TestDoNonRateLimitFailsImmediately(t *testing.T) {
	boom := errors.New("connection refused")
	opts := Options{
		Sleep: func(ctx context.Context, d time.Duration) error {
			t.Fatal("must not sleep on non-rate-limit failure")
			return nil
		},
	}

	calls := 0
	_, err := Do(context.Background(), opts, func() (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{
		InitialDelay: time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := Do(ctx, opts, func() (int, error) {
		return 0, &RateLimitError{Err: errors.New("throttled")}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
