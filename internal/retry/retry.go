// Package retry implements exponential backoff retry for a single upstream
// call, as distinct from the job-level retry policy in internal/worker,
// which re-enqueues a whole gap rather than blocking on a retry loop.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/addrtx/scanner/internal/logging"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// RetryResult reports how a retried operation went.
type RetryResult struct {
	Attempts      int
	Success       bool
	TotalDuration time.Duration
	LastError     error
}

// RetryFunc is a function that can be retried, given the 1-indexed attempt
// number it's being invoked as.
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff calls fn up to config.MaxAttempts times, waiting
// calculateDelay(config, attempt) between attempts. It returns as soon as
// fn succeeds, the context is cancelled, or attempts are exhausted.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	startTime := time.Now()

	result := &RetryResult{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					"attempts", attempt, "totalDuration", result.TotalDuration)
			}
			return result
		}

		result.LastError = err

		if attempt >= config.MaxAttempts {
			logger.Warn("operation failed after max retry attempts",
				"attempts", attempt, "totalDuration", time.Since(startTime), "error", err)
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)
		logger.Warn("operation failed, retrying with exponential backoff",
			"attempt", attempt, "maxAttempts", config.MaxAttempts, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay computes initialDelay * multiplier^(attempt-1), capped at
// MaxDelay.
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
