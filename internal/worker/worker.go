// Package worker runs independent units of audit work on a bounded pool of
// goroutines and collects one tagged outcome per unit.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultWorkers is used when Config.Workers is not positive.
const DefaultWorkers = 12

// Config configures a pool run.
type Config struct {
	Workers int
	Logger  *slog.Logger
	// Stage is attached to every log line.
	Stage string
	// OnComplete is invoked from the collecting goroutine once per unit, in
	// completion order. It must not block for long.
	OnComplete func(unit string, err error)
}

// Outcome is the tagged result of one unit: exactly one of Value or Err is meaningful.
type Outcome[R any] struct {
	Unit     string
	Value    R
	Err      error
	Duration time.Duration
}

// Run executes fn for every unit with at most cfg.Workers running at once and
// returns the outcomes in completion order. A failing or panicking unit never
// affects its siblings. Once ctx is cancelled no new unit is started; units
// that were never started are reported with the context error.
func Run[U, R any](ctx context.Context, cfg Config, units []U, name func(U) string, fn func(context.Context, U) (R, error)) []Outcome[R] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(units) {
		workers = len(units)
	}

	outcomes := make([]Outcome[R], 0, len(units))
	if len(units) == 0 {
		return outcomes
	}

	jobs := make(chan U, len(units))
	results := make(chan Outcome[R], len(units))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				results <- execute(ctx, name(u), u, fn)
			}
		}()
	}

	for _, u := range units {
		jobs <- u
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	failed := 0
	for out := range results {
		if out.Err != nil {
			failed++
			logger.Warn("Unit failed, excluding from results",
				"stage", cfg.Stage,
				"unit", out.Unit,
				"error", out.Err)
		} else {
			logger.Debug("Unit completed",
				"stage", cfg.Stage,
				"unit", out.Unit,
				"duration", out.Duration)
		}
		if cfg.OnComplete != nil {
			cfg.OnComplete(out.Unit, out.Err)
		}
		outcomes = append(outcomes, out)
	}

	logger.Info("Stage units finished",
		"stage", cfg.Stage,
		"units", len(units),
		"succeeded", len(units)-failed,
		"failed", failed,
		"workers", workers)

	return outcomes
}

// execute runs a single unit, converting a panic into an error.
func execute[U, R any](ctx context.Context, unit string, u U, fn func(context.Context, U) (R, error)) (out Outcome[R]) {
	out.Unit = unit
	if err := ctx.Err(); err != nil {
		out.Err = fmt.Errorf("not started: %w", err)
		return out
	}

	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		if r := recover(); r != nil {
			var zero R
			out.Value = zero
			out.Err = fmt.Errorf("panic in unit %s: %v\n%s", unit, r, debug.Stack())
		}
	}()

	out.Value, out.Err = fn(ctx, u)
	return out
}

// Split separates successful values from failed outcomes, preserving order.
func Split[R any](outcomes []Outcome[R]) (values []R, failures []Outcome[R]) {
	values = make([]R, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, o)
			continue
		}
		values = append(values, o.Value)
	}
	return values, failures
}
