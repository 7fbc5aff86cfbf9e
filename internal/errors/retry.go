package errors

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ============================================================
// Retry Configuration
// ============================================================

// Policy defines retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts, including the first
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2)
	Multiplier float64

	// Jitter enables randomized jitter to prevent thundering herd
	Jitter bool

	// RetryIf determines if an error is retryable
	RetryIf func(error) bool
}

// ProviderPolicy returns the policy used for cloud model providers: only
// temporary and rate-limit failures are retried.
func ProviderPolicy(maxAttempts int) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryIf:      IsRetryable,
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() *Policy {
	return &Policy{
		MaxAttempts: 1,
		Multiplier:  1.0,
		RetryIf:     func(error) bool { return false },
	}
}

// ============================================================
// Retry Function
// ============================================================

// Do executes a function with retry logic.
func Do(ctx context.Context, policy *Policy, fn func() error) error {
	_, err := DoWithResult(ctx, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes a function that returns a result with retry logic.
func DoWithResult[T any](ctx context.Context, policy *Policy, fn func() (T, error)) (T, error) {
	if policy == nil {
		policy = NoRetry()
	}

	var zero T
	var lastErr error
	delay := policy.InitialDelay

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if ra := GetRetryAfter(lastErr); ra > delay {
				delay = ra
			}
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy.RetryIf != nil && !policy.RetryIf(err) {
			return zero, err
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}

		if policy.Jitter {
			jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
			delay += jitter
		}
	}

	if policy.MaxAttempts <= 1 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ============================================================
// Circuit Breaker
// ============================================================

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing if service recovered
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops sending requests to a provider that keeps failing.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures      int
	resetTimeout     time.Duration
	halfOpenAttempts int

	state           State
	failures        int
	lastFailureTime time.Time
	halfOpenCount   int

	name string
	now  func() time.Time
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures int

	// ResetTimeout is how long to wait before trying again
	ResetTimeout time.Duration

	// HalfOpenAttempts is how many requests to allow in half-open state
	HalfOpenAttempts int
}

// DefaultCircuitBreakerConfig returns default circuit breaker config.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		ResetTimeout:     60 * time.Second,
		HalfOpenAttempts: 2,
	}
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreaker{
		name:             name,
		maxFailures:      config.MaxFailures,
		resetTimeout:     config.ResetTimeout,
		halfOpenAttempts: config.HalfOpenAttempts,
		state:            StateClosed,
		now:              time.Now,
	}
}

// ExecuteWithResult runs fn through the circuit breaker.
// This is a function since Go doesn't allow generic methods.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T

	if !cb.allowRequest() {
		return zero, Temporary(CodeModelUnavailable, fmt.Sprintf("circuit breaker '%s' is open", cb.name))
	}

	result, err := fn()
	cb.recordResult(err)
	return result, err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCount = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenAttempts {
			cb.halfOpenCount++
			return true
		}
		return false
	}
	return false
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// User errors say nothing about provider health.
	if err == nil || GetCategory(err) == CategoryUser {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
		}
		return
	}

	cb.failures++
	cb.lastFailureTime = cb.now()

	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ============================================================
// Fallback
// ============================================================

// FallbackWithResult executes fn, handing its error to fallback on failure.
func FallbackWithResult[T any](fn func() (T, error), fallback func(error) (T, error)) (T, error) {
	result, err := fn()
	if err != nil {
		return fallback(err)
	}
	return result, nil
}
