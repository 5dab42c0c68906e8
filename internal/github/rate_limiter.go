package github

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-github/v75/github"
)

// lowRemainingThreshold is when a low-budget warning is logged
const lowRemainingThreshold = 100

// RateLimiter spaces requests and pauses every caller once the primary
// budget reported by GitHub is spent. It is shared by all workers.
type RateLimiter struct {
	mu              sync.Mutex
	lastRequestTime time.Time
	minInterval     time.Duration
	logger          *slog.Logger

	coreRemaining int
	coreLimit     int
	coreResetTime time.Time
}

// NewRateLimiter creates a rate limiter. A zero minInterval only enforces
// the primary budget.
func NewRateLimiter(minInterval time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		minInterval:   max(minInterval, 0),
		logger:        logger,
		coreRemaining: 5000,
		coreLimit:     5000,
	}
}

// Wait blocks until it's safe to make another API request
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rl.mu.Lock()
	now := time.Now()
	var wait time.Duration
	if rl.coreRemaining <= 0 && now.Before(rl.coreResetTime) {
		wait = rl.coreResetTime.Sub(now)
		rl.logger.Warn("Rate limit exhausted, waiting for reset",
			"wait_duration", wait,
			"reset_time", rl.coreResetTime)
	}
	// Reserve the next slot while holding the lock so concurrent callers
	// queue behind each other instead of all waking at once.
	next := now.Add(wait)
	if spaced := rl.lastRequestTime.Add(rl.minInterval); spaced.After(next) {
		next = spaced
	}
	rl.lastRequestTime = next
	if wait > 0 {
		rl.coreRemaining = rl.coreLimit
	}
	rl.mu.Unlock()

	return sleepContext(ctx, time.Until(next))
}

// UpdateLimits records the budget GitHub reported on the last response
func (rl *RateLimiter) UpdateLimits(remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.coreRemaining = remaining
	rl.coreLimit = limit
	rl.coreResetTime = resetTime

	if remaining < lowRemainingThreshold {
		rl.logger.Warn("GitHub API rate limit running low",
			"remaining", remaining,
			"limit", limit,
			"reset_time", resetTime)
	}
}

// Observe updates limits from a go-github response, ignoring responses
// without rate headers.
func (rl *RateLimiter) Observe(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	rl.UpdateLimits(resp.Rate.Remaining, resp.Rate.Limit, resp.Rate.Reset.Time)
}

// GetStatus returns the current rate limit status
func (rl *RateLimiter) GetStatus() (remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.coreRemaining, rl.coreLimit, rl.coreResetTime
}
