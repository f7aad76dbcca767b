// Package resilience provides retry policies and a circuit breaker for
// outbound collaborator calls.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BackoffFunc returns the delay to wait before retry number attempt
// (0-based: attempt 0 is the delay after the first failure).
type BackoffFunc func(attempt int) time.Duration

// Policy is a bounded retry policy shared by outbound calls.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// A value of 1 disables retries. Default: 3.
	MaxAttempts int

	// Backoff computes the sleep between attempts. Default: exponential
	// from 500ms doubling each attempt, capped at 30s, ±25% jitter.
	Backoff BackoffFunc

	// ShouldRetry decides whether an error is worth another attempt.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the policy used for API calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(500*time.Millisecond, 30*time.Second, 2.0, 0.25),
	}
}

// NewPolicy builds an exponential-backoff policy from config values. Zero or
// negative values keep the defaults.
func NewPolicy(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier float64) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	initial := 500 * time.Millisecond
	if initialBackoffMs > 0 {
		initial = time.Duration(initialBackoffMs) * time.Millisecond
	}
	maxDelay := 30 * time.Second
	if maxBackoffMs > 0 {
		maxDelay = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.Backoff = ExponentialBackoff(initial, maxDelay, multiplier, 0.25)
	return p
}

// ExponentialBackoff returns initial * multiplier^attempt capped at maxDelay,
// with ±jitter applied as a fraction of the delay.
func ExponentialBackoff(initial, maxDelay time.Duration, multiplier, jitter float64) BackoffFunc {
	return func(attempt int) time.Duration {
		delay := float64(initial) * math.Pow(multiplier, float64(attempt))
		if delay > float64(maxDelay) {
			delay = float64(maxDelay)
		}
		if jitter > 0 {
			r := delay * jitter
			delay += (rand.Float64()*2 - 1) * r
		}
		if delay < 0 {
			delay = 0
		}
		return time.Duration(delay)
	}
}

// ConstantBackoff always waits d.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff == nil {
		p.Backoff = DefaultPolicy().Backoff
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.ShouldRetry(err) {
			return zero, lastErr
		}
		if attempt >= p.MaxAttempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
