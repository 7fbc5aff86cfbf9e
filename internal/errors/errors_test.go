package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsDetails(t *testing.T) {
	inner := NewBuilder(CodeValidationFailed, "Invalid input").
		User().
		WithDetails("topics: value must be one of the fixed topics").
		Build()

	wrapped := Wrap(inner, CodeCloudRequestFailed, "cloud critique failed", CategoryUser)
	require.NotNil(t, wrapped)
	assert.Equal(t, []string{"topics: value must be one of the fixed topics"}, GetDetails(wrapped))
	assert.True(t, stderrors.Is(wrapped, inner))
	assert.Equal(t, CodeCloudRequestFailed, GetCode(wrapped))
	assert.Nil(t, Wrap(nil, CodeInvalidInput, "nothing", CategoryUser))
}

func TestFormatUserMessage(t *testing.T) {
	err := NewBuilder(CodeValidationFailed, "Invalid input").
		User().
		WithDetails("image: missing").
		WithSuggestion("Upload an image first").
		Build()

	msg := FormatUserMessage(err)
	assert.Contains(t, msg, "Invalid input")
	assert.Contains(t, msg, "image: missing")
	assert.Contains(t, msg, "Upload an image first")
	assert.Equal(t, "plain", FormatUserMessage(stderrors.New("plain")))
	assert.Empty(t, FormatUserMessage(nil))
}

func TestDoWithResultStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), ProviderPolicy(3), func() (int, error) {
		calls++
		return 0, Permanent(CodeModelParseError, "bad json")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResultRetriesTemporary(t *testing.T) {
	policy := ProviderPolicy(3)
	policy.InitialDelay = time.Millisecond
	policy.Jitter = false

	calls := 0
	got, err := DoWithResult(context.Background(), policy, func() (string, error) {
		calls++
		if calls < 3 {
			return "", Temporary(CodeModelUnavailable, "busy")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestNoRetryReturnsBareError(t *testing.T) {
	boom := stderrors.New("boom")
	err := Do(context.Background(), NoRetry(), func() error { return boom })
	assert.Same(t, boom, err)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(stderrors.New("connection reset")))
	assert.True(t, IsRetryable(Temporary(CodeModelUnavailable, "busy")))
	assert.True(t, IsRetryable(RateLimit(CodeModelRateLimit, "slow down", time.Second)))
	assert.True(t, IsRetryable(NewBuilder(CodeCloudRequestFailed, "wrapped").Build()))
	assert.False(t, IsRetryable(Permanent(CodeModelParseError, "bad json")))
	assert.False(t, IsRetryable(User(CodeInvalidInput, "no topics")))
	assert.False(t, IsRetryable(NewBuilder(CodeModelUnavailable, "invalid API key").System().Build()))
}

func TestDoWithResultNilPolicyRunsOnce(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), nil, func() (int, error) {
		calls++
		return 0, Temporary(CodeModelUnavailable, "busy")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute, HalfOpenAttempts: 1})
	cb.now = func() time.Time { return now }

	fail := func() (int, error) { return 0, Temporary(CodeModelUnavailable, "down") }
	_, _ = ExecuteWithResult(cb, fail)
	_, _ = ExecuteWithResult(cb, fail)
	assert.Equal(t, StateOpen, cb.State())

	_, err := ExecuteWithResult(cb, func() (int, error) { return 1, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")

	now = now.Add(2 * time.Minute)
	got, err := ExecuteWithResult(cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresUserErrors(t *testing.T) {
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenAttempts: 1})
	_, _ = ExecuteWithResult(cb, func() (int, error) { return 0, User(CodeInvalidInput, "bad image") })
	assert.Equal(t, StateClosed, cb.State())
}

func TestFallbackWithResult(t *testing.T) {
	got, err := FallbackWithResult(
		func() (string, error) { return "", stderrors.New("local failed") },
		func(cause error) (string, error) { return "cloud after " + cause.Error(), nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "cloud after local failed", got)
}
