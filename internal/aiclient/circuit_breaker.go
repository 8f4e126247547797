package aiclient

import (
	"sync"
	"time"
)

// CircuitBreaker tracks consecutive retryable failures and briefly opens the
// circuit after too many in a short window, so a flapping provider doesn't
// get hammered by every in-flight caller at once (spec section 4.5). State
// is process-wide per Client instance, guarded by a mutex the way the
// teacher isolates its own rate limiter state.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	failureWindow    time.Duration
	openDuration     time.Duration

	consecutiveFailures int
	lastFailureAt       time.Time
	openUntil           time.Time

	now func() time.Time
}

// NewCircuitBreaker returns a breaker that opens for openDuration once
// failureThreshold retryable failures land within failureWindow of each
// other. Spec section 4.5 default: 5 failures within 60s opens for 15s.
func NewCircuitBreaker(failureThreshold int, failureWindow, openDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		failureWindow:    failureWindow,
		openDuration:     openDuration,
		now:              time.Now,
	}
}

// Open reports whether the circuit is currently open, rejecting calls.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked()
}

func (b *CircuitBreaker) openLocked() bool {
	return !b.openUntil.IsZero() && b.now().Before(b.openUntil)
}

// RecordSuccess resets the failure counter and closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.lastFailureAt = time.Time{}
	b.openUntil = time.Time{}
}

// RecordFailure records a retryable failure. If failures are spaced out by
// more than failureWindow, the counter decays before counting this one.
// Crossing failureThreshold opens the circuit for openDuration.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if !b.lastFailureAt.IsZero() && now.Sub(b.lastFailureAt) > b.failureWindow {
		b.consecutiveFailures = 0
	}
	b.lastFailureAt = now
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.openUntil = now.Add(b.openDuration)
	}
}
