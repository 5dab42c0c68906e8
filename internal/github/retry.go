package github

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig returns the retry policy used for audit reads
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      30 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// RetryConfigFromMaxRetries turns a "retries after the first attempt" setting
// into a RetryConfig with the default backoff curve.
func RetryConfigFromMaxRetries(maxRetries int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxRetries >= 0 {
		cfg.MaxAttempts = maxRetries + 1
	}
	return cfg
}

// SecondaryRateLimitBackoff is used when GitHub does not send Retry-After
const SecondaryRateLimitBackoff = 60 * time.Second

// RateLimitResetBuffer is added to the reset time so the window has really rolled over
const RateLimitResetBuffer = 5 * time.Second

const (
	MinRateLimitWait = 10 * time.Second
	MaxRateLimitWait = 15 * time.Minute
)

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config      RetryConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryer creates a new retryer
func NewRetryer(config RetryConfig, rateLimiter *RateLimiter, logger *slog.Logger) *Retryer {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiple < 1 {
		config.BackoffMultiple = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retryer{
		config:      config,
		rateLimiter: rateLimiter,
		logger:      logger,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rateLimitWait determines how long to wait for a primary limit to reset
func rateLimitWait(err error, now time.Time) time.Duration {
	wait := SecondaryRateLimitBackoff
	if reset, ok := ParseRateLimitResetTime(err); ok {
		wait = reset.Sub(now) + RateLimitResetBuffer
	}
	return min(max(wait, MinRateLimitWait), MaxRateLimitWait)
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

// Do executes fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts.
func (r *Retryer) Do(ctx context.Context, operation string, fn RetryFunc) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if r.rateLimiter != nil {
			if err := r.rateLimiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if !IsRetryableError(err) {
			r.logger.Debug("Non-retryable error encountered",
				"operation", operation,
				"attempt", attempt,
				"error", err)
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		var wait time.Duration
		switch {
		case IsSecondaryRateLimitError(err):
			wait = SecondaryRateLimitBackoff
			if after, ok := secondaryRetryAfter(err); ok {
				wait = after
			}
			r.logger.Warn("Secondary rate limit hit, waiting before retry",
				"operation", operation,
				"attempt", attempt,
				"wait_duration", wait)
		case IsRateLimitError(err):
			wait = rateLimitWait(err, time.Now())
			r.logger.Warn("Rate limit exceeded, waiting for reset",
				"operation", operation,
				"attempt", attempt,
				"blocked", IsRateLimitBlockedError(err),
				"wait_duration", wait)
		default:
			wait = backoff
			backoff = min(time.Duration(float64(backoff)*r.config.BackoffMultiple), r.config.MaxBackoff)
			r.logger.Info("Retryable error, backing off",
				"operation", operation,
				"attempt", attempt,
				"backoff", wait,
				"error", err)
		}

		if err := r.sleep(ctx, wait); err != nil {
			return fmt.Errorf("context cancelled during retry of %s: %w", operation, err)
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w",
		operation, r.config.MaxAttempts, lastErr)
}
