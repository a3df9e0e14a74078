package httpx

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for bootstrap API calls.
type RetryConfig struct {
	MaxRetries        int           `json:"maxRetries"`
	BaseDelay         time.Duration `json:"baseDelay"`
	BackoffFactor     float64       `json:"backoffFactor"`
	RetryableStatuses []int         `json:"retryableStatuses"`
}

// DefaultRetryConfig returns the bootstrap retry policy: up to 3 attempts at
// 800 ms × 2ⁿ on auth/rate/server statuses.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     800 * time.Millisecond,
		BackoffFactor: 2.0,
		RetryableStatuses: []int{
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// StatusError is an HTTP failure carrying the status and response body.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// IsRetryable reports whether err warrants another attempt under config.
func IsRetryable(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}
	statusErr, ok := err.(*StatusError)
	if !ok {
		// Transport-level failures are terminal for the bootstrap; the
		// resolver will re-trigger once connectivity returns.
		return false
	}
	for _, code := range config.RetryableStatuses {
		if statusErr.Status == code {
			return true
		}
	}
	return false
}

// BackoffDelay returns the delay before retry attempt n (0-based):
// baseDelay × backoffFactor^n.
func BackoffDelay(attempt int, config RetryConfig) time.Duration {
	if attempt <= 0 {
		return config.BaseDelay
	}
	return time.Duration(float64(config.BaseDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
}

// RetryableOperation is an operation that can be retried.
type RetryableOperation[T any] func(ctx context.Context, attempt int) (T, error)

// ExecuteWithRetry runs operation until it succeeds, exhausts the attempt
// budget, or hits a terminal error.
func ExecuteWithRetry[T any](ctx context.Context, operation RetryableOperation[T], config RetryConfig) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, lastErr = operation(ctx, attempt)
		if lastErr == nil {
			return result, nil
		}
		if attempt >= config.MaxRetries || !IsRetryable(lastErr, config) {
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(BackoffDelay(attempt, config)):
		}
	}

	return result, lastErr
}
