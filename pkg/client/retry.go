package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fastpurgeRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastpurge_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fastpurgeRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fastpurge_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	fastpurgeRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastpurge_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial request.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed exponential delay.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// MaxRetryAfter caps a server supplied Retry-After delay.
	MaxRetryAfter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        10,
		InitialBackoff:    150 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		MaxRetryAfter:     5 * time.Minute,
	}
}

// backoff returns the un-jittered delay before retry number n (1-based).
func (rc RetryConfig) backoff(n int) time.Duration {
	d := float64(rc.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= rc.BackoffMultiplier
		if rc.MaxBackoff > 0 && d >= float64(rc.MaxBackoff) {
			return rc.MaxBackoff
		}
	}
	if rc.MaxBackoff > 0 && d > float64(rc.MaxBackoff) {
		return rc.MaxBackoff
	}
	return time.Duration(d)
}

// capRetryAfter bounds a server supplied delay by MaxRetryAfter.
func (rc RetryConfig) capRetryAfter(d time.Duration) time.Duration {
	if rc.MaxRetryAfter > 0 && d > rc.MaxRetryAfter {
		return rc.MaxRetryAfter
	}
	return d
}

// delayFor picks the wait before retry n, preferring the server's Retry-After.
func (rc RetryConfig) delayFor(n int, err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return rc.capRetryAfter(apiErr.RetryAfter), true
	}

	// Add jitter (±20% randomness)
	base := rc.backoff(n)
	return time.Duration(float64(base) * (0.8 + rand.Float64()*0.4)), false
}

// maxRetryAfterSeconds is the largest delta-seconds value a Duration can hold.
const maxRetryAfterSeconds = int64(math.MaxInt64 / int64(time.Second))

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if secs <= 0 {
			return 0
		}
		secs = min(secs, maxRetryAfterSeconds)
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// or the retry budget is spent. It returns the number of attempts made.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func() error) (int, error) {
	var lastErr error
	var errorClass ErrorClass

	attempt := 0
	for {
		attempt++

		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		if errors.Is(err, ErrContextCancelled) {
			return attempt, err
		}

		errorClass = classifyError(err)
		if !shouldRetry(errorClass) {
			return attempt, lastErr
		}

		if attempt > config.MaxRetries {
			break
		}

		wait, fromServer := config.delayFor(attempt, err)
		fastpurgeRetriesTotal.WithLabelValues(string(errorClass)).Inc()
		fastpurgeRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Bool("retry_after", fromServer).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	fastpurgeRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Error().
		Str("error_class", string(errorClass)).
		Int("max_retries", config.MaxRetries).
		Msg("Retry attempts exhausted")

	return attempt, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
}
