package resilience

import (
	"context"
	"fmt"
)

// GracefulDegradation tries primaryFn with RetryWithClassification first. If
// every primary attempt fails and the failure's classification says
// degrading might help, it falls back to fallbackFn (a simpler operation:
// lower reasoning, fewer steps, a smaller tool set). If the fallback also
// fails, the original primary error is returned, wrapped with the fallback's
// error for diagnostics.
func GracefulDegradation(ctx context.Context, opts RetryOptions, primaryFn, fallbackFn func() error) error {
	primaryErr := RetryWithClassification(ctx, opts, primaryFn)
	if primaryErr == nil {
		return nil
	}

	classification := Classify(primaryErr)
	if !classification.ShouldDegrade {
		return primaryErr
	}

	if fallbackErr := fallbackFn(); fallbackErr != nil {
		return fmt.Errorf("primary failed (%w); fallback also failed: %v", primaryErr, fallbackErr)
	}
	return nil
}

// AdaptiveTimeout computes a timeout scaled by operation complexity and
// widened after previous failures, bounded to [minTimeout, maxTimeout].
func AdaptiveTimeout(baseTimeout float64, complexityScore float64, previousFailures int, minTimeout, maxTimeout float64) float64 {
	timeout := baseTimeout * complexityScore
	if previousFailures > 0 {
		timeout *= 1.0 + float64(previousFailures)*0.5
	}
	if timeout < minTimeout {
		return minTimeout
	}
	if timeout > maxTimeout {
		return maxTimeout
	}
	return timeout
}

// PartialResult is the combined outcome of a batch of independently
// attempted operations (e.g. notifying several reply channels, running
// several alternative tool approaches).
type PartialResult struct {
	OK           bool
	Partial      bool
	SuccessCount int
	FailureCount int
	Results      []OperationResult
	Err          error
}

// OperationResult is one element of the batch PartialSuccess evaluates.
type OperationResult struct {
	OK     bool
	Result any
	Error  error
}

// PartialSuccess evaluates a batch of operation outcomes and decides whether
// the batch as a whole succeeded. If continueOnPartial is true, any batch
// meeting minSuccessCount counts as an overall success (with Partial set
// when some failed); otherwise a successful batch only returns the
// successful subset.
func PartialSuccess(results []OperationResult, minSuccessCount int, continueOnPartial bool) PartialResult {
	successCount, failureCount := 0, 0
	for _, r := range results {
		if r.OK {
			successCount++
		} else {
			failureCount++
		}
	}

	if successCount >= minSuccessCount {
		if continueOnPartial {
			return PartialResult{
				OK:           true,
				Partial:      failureCount > 0,
				SuccessCount: successCount,
				FailureCount: failureCount,
				Results:      results,
			}
		}
		successes := make([]OperationResult, 0, successCount)
		for _, r := range results {
			if r.OK {
				successes = append(successes, r)
			}
		}
		return PartialResult{OK: true, SuccessCount: successCount, Results: successes}
	}

	return PartialResult{
		OK:           false,
		SuccessCount: successCount,
		FailureCount: failureCount,
		Results:      results,
		Err:          ErrInsufficientSuccesses,
	}
}
