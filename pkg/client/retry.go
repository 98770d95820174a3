package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	screenerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	screenerRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "screener_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	screenerRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryPolicy configures retries of a single page request.
//
// The zero value and NoRetry both mean one attempt: a failed page aborts the
// retrieval immediately. Client errors (4xx) are never retried.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// NoRetry returns the default policy: a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// DefaultRetryPolicy returns a resilient policy for callers that opt in.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 1 * time.Second
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 1
	}
	return p
}

// retryWithBackoff executes fn until it succeeds, returns a non-retriable
// error, or the policy runs out of attempts. It respects context
// cancellation and adds jitter to each wait.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, fn func() error, classify func(error) ErrorClass) error {
	policy = policy.normalized()

	var lastErr error
	var errorClass ErrorClass
	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = classify(err)

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt >= policy.MaxAttempts {
			break
		}

		screenerRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		screenerRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	if policy.MaxAttempts == 1 {
		return lastErr
	}

	screenerRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", policy.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &retryExhaustedError{attempts: policy.MaxAttempts, last: lastErr}
}

// retryExhaustedError keeps the last failure reachable through errors.As so
// callers still see the StatusError and its status code.
type retryExhaustedError struct {
	attempts int
	last     error
}

func (e *retryExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetryExhausted, e.attempts, e.last)
}

func (e *retryExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.last}
}
