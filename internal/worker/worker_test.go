package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_AllSucceed(t *testing.T) {
	units := []int{1, 2, 3, 4, 5, 6, 7, 8}

	outcomes := Run(context.Background(), Config{Workers: 3, Logger: testLogger(), Stage: "test"},
		units,
		func(u int) string { return fmt.Sprintf("unit-%d", u) },
		func(_ context.Context, u int) (int, error) { return u * u, nil },
	)

	if len(outcomes) != len(units) {
		t.Fatalf("Run() returned %d outcomes, want %d", len(outcomes), len(units))
	}

	values, failures := Split(outcomes)
	if len(failures) != 0 {
		t.Fatalf("Split() failures = %d, want 0", len(failures))
	}
	sort.Ints(values)
	want := []int{1, 4, 9, 16, 25, 36, 49, 64}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("values[%d] = %d, want %d", i, values[i], want[i])
		}
	}
}

func TestRun_UnitIsolation(t *testing.T) {
	units := []string{"alpha", "boom", "panic", "delta"}

	outcomes := Run(context.Background(), Config{Workers: 2, Logger: testLogger()},
		units,
		func(u string) string { return u },
		func(_ context.Context, u string) (string, error) {
			switch u {
			case "boom":
				return "", errors.New("simulated failure")
			case "panic":
				panic("simulated panic")
			}
			return strings.ToUpper(u), nil
		},
	)

	values, failures := Split(outcomes)
	sort.Strings(values)
	if got := strings.Join(values, ","); got != "ALPHA,DELTA" {
		t.Errorf("values = %q, want ALPHA,DELTA", got)
	}
	if len(failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(failures))
	}

	byUnit := map[string]error{}
	for _, f := range failures {
		byUnit[f.Unit] = f.Err
	}
	if byUnit["boom"] == nil || !strings.Contains(byUnit["boom"].Error(), "simulated failure") {
		t.Errorf("boom error = %v", byUnit["boom"])
	}
	if byUnit["panic"] == nil || !strings.Contains(byUnit["panic"].Error(), "simulated panic") {
		t.Errorf("panic error = %v", byUnit["panic"])
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	const workers = 3
	var running, peak int32

	units := make([]int, 20)
	for i := range units {
		units[i] = i
	}

	Run(context.Background(), Config{Workers: workers, Logger: testLogger()},
		units,
		func(u int) string { return fmt.Sprint(u) },
		func(_ context.Context, _ int) (struct{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return struct{}{}, nil
		},
	)

	if peak > workers {
		t.Errorf("peak concurrency = %d, want <= %d", peak, workers)
	}
}

func TestRun_OnCompleteCalledOncePerUnit(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	units := []string{"a", "b", "c"}
	Run(context.Background(), Config{
		Workers: 2,
		Logger:  testLogger(),
		OnComplete: func(unit string, _ error) {
			mu.Lock()
			seen[unit]++
			mu.Unlock()
		},
	}, units, func(u string) string { return u }, func(_ context.Context, u string) (string, error) {
		if u == "b" {
			return "", errors.New("fail")
		}
		return u, nil
	})

	for _, u := range units {
		if seen[u] != 1 {
			t.Errorf("OnComplete called %d times for %s, want 1", seen[u], u)
		}
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	outcomes := Run(ctx, Config{Workers: 2, Logger: testLogger()},
		[]int{1, 2, 3},
		func(u int) string { return fmt.Sprint(u) },
		func(_ context.Context, u int) (int, error) {
			atomic.AddInt32(&calls, 1)
			return u, nil
		},
	)

	if calls != 0 {
		t.Errorf("fn called %d times after cancellation, want 0", calls)
	}
	for _, o := range outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("outcome %s error = %v, want context.Canceled", o.Unit, o.Err)
		}
	}
}

func TestRun_Empty(t *testing.T) {
	outcomes := Run(context.Background(), Config{}, nil,
		func(u int) string { return "" },
		func(_ context.Context, u int) (int, error) { return u, nil },
	)
	if outcomes == nil || len(outcomes) != 0 {
		t.Errorf("Run() on no units = %v, want empty non-nil", outcomes)
	}
}
