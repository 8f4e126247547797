package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/resilience"
)

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		msg      string
		category resilience.ErrorCategory
		retry    bool
	}{
		{"rate limit exceeded (429)", resilience.CategoryRateLimit, true},
		{"request timed out", resilience.CategoryTimeout, true},
		{"connection refused", resilience.CategoryNetwork, true},
		{"401 unauthorized", resilience.CategoryAuth, false},
		{"400 invalid request body", resilience.CategoryValidation, false},
		{"507 resource quota exceeded", resilience.CategoryResource, true},
		{"something unexpected happened", resilience.CategoryTransient, true},
	}
	for _, c := range cases {
		got := resilience.Classify(errors.New(c.msg))
		assert.Equal(t, c.category, got.Category, c.msg)
		assert.Equal(t, c.retry, got.Retryable, c.msg)
	}
}

func TestBackoffWithJitterIsBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("backoff never exceeds maxDelay plus jitter headroom and never negative", prop.ForAll(
		func(attempt int) bool {
			maxDelay := 10 * time.Second
			delay := resilience.BackoffWithJitter(attempt, 100*time.Millisecond, maxDelay, 2.0, 0.1)
			return delay >= 0 && delay <= maxDelay+maxDelay/10
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func TestRetryWithClassificationStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := resilience.RetryWithClassification(context.Background(), resilience.DefaultRetryOptions(), func() error {
		calls++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithClassificationSucceedsEventually(t *testing.T) {
	calls := 0
	opts := resilience.RetryOptions{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	err := resilience.RetryWithClassification(context.Background(), opts, func() error {
		calls++
		if calls < 3 {
			return errors.New("network connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGracefulDegradationFallsBackOnDegradableFailure(t *testing.T) {
	opts := resilience.RetryOptions{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	fallbackCalled := false
	err := resilience.GracefulDegradation(context.Background(), opts,
		func() error { return errors.New("request timed out") },
		func() error { fallbackCalled = true; return nil },
	)
	require.NoError(t, err)
	assert.True(t, fallbackCalled)
}

func TestGracefulDegradationDoesNotDegradeOnValidationError(t *testing.T) {
	opts := resilience.RetryOptions{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	fallbackCalled := false
	err := resilience.GracefulDegradation(context.Background(), opts,
		func() error { return errors.New("400 invalid request") },
		func() error { fallbackCalled = true; return nil },
	)
	require.Error(t, err)
	assert.False(t, fallbackCalled)
}

func TestPartialSuccessMinCount(t *testing.T) {
	results := []resilience.OperationResult{{OK: true}, {OK: false}, {OK: true}}
	got := resilience.PartialSuccess(results, 2, true)
	assert.True(t, got.OK)
	assert.True(t, got.Partial)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)
}

func TestPartialSuccessInsufficient(t *testing.T) {
	results := []resilience.OperationResult{{OK: false}, {OK: false}}
	got := resilience.PartialSuccess(results, 1, true)
	assert.False(t, got.OK)
	assert.ErrorIs(t, got.Err, resilience.ErrInsufficientSuccesses)
}

func TestAdjustedRetryParamsLadder(t *testing.T) {
	err := errors.New("request timed out")
	ok, params := resilience.AdjustedRetryParams(err, 1, 2)
	require.True(t, ok)
	assert.Equal(t, resilience.ReasoningEffortMedium, params.ReasoningEffort)

	ok, params = resilience.AdjustedRetryParams(err, 2, 2)
	require.True(t, ok)
	assert.Equal(t, resilience.ReasoningEffortLow, params.ReasoningEffort)

	ok, _ = resilience.AdjustedRetryParams(err, 3, 2)
	assert.False(t, ok)
}

func TestAdjustedRetryParamsSkipsNonDegradable(t *testing.T) {
	ok, _ := resilience.AdjustedRetryParams(errors.New("401 unauthorized"), 1, 2)
	assert.False(t, ok)
}
