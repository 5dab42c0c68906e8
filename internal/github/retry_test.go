package github

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v75/github"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRetryer records requested sleeps instead of sleeping.
func newTestRetryer(cfg RetryConfig) (*Retryer, *[]time.Duration) {
	r := NewRetryer(cfg, NewRateLimiter(0, discardLogger()), discardLogger())
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func statusErr(status int) error {
	return WrapError(&github.ErrorResponse{Response: testResponse(status, nil)}, "op", "url")
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiple != 2.0 {
		t.Errorf("BackoffMultiple = %f, want 2.0", config.BackoffMultiple)
	}
}

func TestRetryConfigFromMaxRetries(t *testing.T) {
	if got := RetryConfigFromMaxRetries(3).MaxAttempts; got != 4 {
		t.Errorf("MaxAttempts = %d, want 4", got)
	}
	if got := RetryConfigFromMaxRetries(0).MaxAttempts; got != 1 {
		t.Errorf("MaxAttempts = %d, want 1", got)
	}
}

func TestRetryer_SuccessFirstAttempt(t *testing.T) {
	r, slept := newTestRetryer(DefaultRetryConfig())

	calls := 0
	err := r.Do(context.Background(), "ListTags", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Errorf("calls = %d, sleeps = %v; want 1 call, no sleeps", calls, *slept)
	}
}

func TestRetryer_BacksOffExponentially(t *testing.T) {
	r, slept := newTestRetryer(RetryConfig{
		MaxAttempts:     4,
		InitialBackoff:  time.Second,
		MaxBackoff:      3 * time.Second,
		BackoffMultiple: 2,
	})

	calls := 0
	err := r.Do(context.Background(), "ListCommits", func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return statusErr(http.StatusBadGateway)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestRetryer_NonRetryableReturnsImmediately(t *testing.T) {
	r, _ := newTestRetryer(DefaultRetryConfig())

	calls := 0
	err := r.Do(context.Background(), "GetContents", func(ctx context.Context) error {
		calls++
		return statusErr(http.StatusNotFound)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Do() error = %v, want ErrNotFound", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryer_ExhaustsAttempts(t *testing.T) {
	r, _ := newTestRetryer(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiple: 2})

	calls := 0
	err := r.Do(context.Background(), "ListBranches", func(ctx context.Context) error {
		calls++
		return statusErr(http.StatusServiceUnavailable)
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrServerError) {
		t.Errorf("Do() error = %v, want ErrServerError in chain", err)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("Do() error = %q", err.Error())
	}
}

func TestRetryer_SecondaryRateLimitHonoursRetryAfter(t *testing.T) {
	r, slept := newTestRetryer(DefaultRetryConfig())

	retryAfter := 7 * time.Second
	calls := 0
	err := r.Do(context.Background(), "ListBranches", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return WrapError(&github.AbuseRateLimitError{
				Response:   testResponse(http.StatusForbidden, nil),
				RetryAfter: &retryAfter,
			}, "op", "url")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != retryAfter {
		t.Errorf("sleeps = %v, want [%v]", *slept, retryAfter)
	}
}

func TestRetryer_PrimaryRateLimitWaitIsClamped(t *testing.T) {
	tests := []struct {
		name  string
		reset time.Time
		want  time.Duration
	}{
		{"reset already passed", time.Now().Add(-time.Minute), MinRateLimitWait},
		{"reset far away", time.Now().Add(2 * time.Hour), MaxRateLimitWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &github.RateLimitError{
				Rate:     github.Rate{Reset: github.Timestamp{Time: tt.reset}},
				Response: testResponse(http.StatusForbidden, nil),
			}
			if got := rateLimitWait(err, time.Now()); got != tt.want {
				t.Errorf("rateLimitWait() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := rateLimitWait(errors.New("no reset"), time.Now()); got != SecondaryRateLimitBackoff {
		t.Errorf("rateLimitWait(no reset) = %v, want %v", got, SecondaryRateLimitBackoff)
	}
}

func TestRetryer_ContextCancelledDuringWait(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiple: 2}, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "ListTags", func(ctx context.Context) error {
		calls++
		cancel()
		return statusErr(http.StatusBadGateway)
	})
	if err == nil {
		t.Fatal("Do() error = nil, want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
