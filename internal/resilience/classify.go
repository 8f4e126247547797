// Package resilience implements the error classifier, backoff-with-jitter,
// retry-with-classification, graceful degradation, adaptive timeout, and
// partial-success combinators the agent runtime and job executor use to
// survive flaky AI, chat, and git-host calls without hand-rolled retry loops
// at every call site.
package resilience

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// ErrorCategory classifies a failure for retry/backoff purposes.
type ErrorCategory string

const (
	CategoryTransient ErrorCategory = "transient"
	CategoryPermanent ErrorCategory = "permanent"
	CategoryRateLimit ErrorCategory = "rate_limit"
	CategoryTimeout   ErrorCategory = "timeout"
	CategoryResource  ErrorCategory = "resource"
	CategoryNetwork   ErrorCategory = "network"
	CategoryAuth      ErrorCategory = "auth"
	CategoryValidation ErrorCategory = "validation"
)

// Classification is the outcome of classifying an error: whether to retry,
// whether a failure might be fixed by degrading to a simpler operation, the
// backoff multiplier to apply, and the maximum retry count for this
// category.
type Classification struct {
	Category          ErrorCategory
	Retryable         bool
	ShouldDegrade     bool
	BackoffMultiplier float64
	MaxRetries        int
}

// Classify inspects an error's message and returns the retry strategy for
// it. Classification is message-based rather than type-based because the
// agent runtime sees errors from many unrelated sources (AI providers, chat
// platform, git host, internal stores) that don't share a common error
// hierarchy; providers that can classify more precisely (internal/model's
// ProviderError, internal/toolerrors.ToolError) should be unwrapped and
// consulted first by the caller before falling back to Classify.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryTransient, Retryable: false}
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "rate limit", "429", "too many requests"):
		return Classification{Category: CategoryRateLimit, Retryable: true, BackoffMultiplier: 2.0, MaxRetries: 5}
	case containsAny(msg, "timeout", "timed out", "408"):
		return Classification{Category: CategoryTimeout, Retryable: true, ShouldDegrade: true, BackoffMultiplier: 1.5, MaxRetries: 3}
	case containsAny(msg, "connection", "network", "dns", "502", "503", "504"):
		return Classification{Category: CategoryNetwork, Retryable: true, BackoffMultiplier: 1.5, MaxRetries: 3}
	case containsAny(msg, "auth", "unauthorized", "forbidden", "401", "403"):
		return Classification{Category: CategoryAuth, Retryable: false, BackoffMultiplier: 1.0, MaxRetries: 0}
	case containsAny(msg, "validation", "invalid", "bad request", "400"):
		return Classification{Category: CategoryValidation, Retryable: false, BackoffMultiplier: 1.0, MaxRetries: 0}
	case containsAny(msg, "resource", "quota", "limit exceeded", "507"):
		return Classification{Category: CategoryResource, Retryable: true, ShouldDegrade: true, BackoffMultiplier: 2.0, MaxRetries: 2}
	default:
		return Classification{Category: CategoryTransient, Retryable: true, BackoffMultiplier: 1.0, MaxRetries: 3}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// BackoffWithJitter computes an exponential backoff delay for the given
// 1-indexed attempt, bounded to [0, maxDelay] and perturbed by ±jitter
// percent to avoid thundering-herd retries.
func BackoffWithJitter(attempt int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(baseDelay) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	jitterAmount := delay * jitter * (2*rand.Float64() - 1)
	delay += jitterAmount
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
