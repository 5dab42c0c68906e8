package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

var (
	// ErrRateLimitExceeded is returned when the primary rate limit is exhausted
	ErrRateLimitExceeded = errors.New("github rate limit exceeded")

	// ErrSecondaryRateLimit is returned when GitHub asks the client to slow down
	ErrSecondaryRateLimit = errors.New("github secondary rate limit exceeded")

	ErrUnauthorized  = errors.New("github authentication failed")
	ErrNotFound      = errors.New("github resource not found")
	ErrForbidden     = errors.New("github access forbidden")
	ErrConflict      = errors.New("github conflict")
	ErrUnprocessable = errors.New("github unprocessable entity")
	ErrServerError   = errors.New("github server error")
	ErrBadRequest    = errors.New("github bad request")
)

// APIError wraps a failed GitHub call. It unwraps to both the classifying
// sentinel (ErrNotFound, ...) and the original go-github error, so callers can
// use errors.Is for the former and errors.As for *github.RateLimitError and friends.
type APIError struct {
	StatusCode int
	Message    string
	Operation  string
	URL        string
	Kind       error
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s failed: %s (status: %d, url: %s)", e.Operation, e.Message, e.StatusCode, e.URL)
}

func (e *APIError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WrapError converts a go-github error into an APIError.
func WrapError(err error, operation, url string) error {
	if err == nil {
		return nil
	}

	var existing *APIError
	if errors.As(err, &existing) {
		return err
	}

	apiErr := &APIError{Operation: operation, URL: url, Message: err.Error(), Err: err}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var ghErr *github.ErrorResponse

	switch {
	case errors.As(err, &rateErr):
		apiErr.Message = rateErr.Message
		if rateErr.Response != nil {
			apiErr.StatusCode = rateErr.Response.StatusCode
		}
		apiErr.Kind = ErrRateLimitExceeded
	case errors.As(err, &abuseErr):
		apiErr.Message = abuseErr.Message
		if abuseErr.Response != nil {
			apiErr.StatusCode = abuseErr.Response.StatusCode
		}
		apiErr.Kind = ErrSecondaryRateLimit
	case errors.As(err, &ghErr) && ghErr.Response != nil:
		apiErr.StatusCode = ghErr.Response.StatusCode
		apiErr.Message = ghErr.Message
		apiErr.Kind = mapErrorType(ghErr.Response.StatusCode, ghErr.Response.Header)
	default:
		// Proxies in front of GHES answer with HTML pages that go-github cannot decode.
		apiErr.StatusCode = extractStatusCodeFromError(err)
		if apiErr.StatusCode > 0 {
			apiErr.Kind = mapErrorType(apiErr.StatusCode, nil)
		}
	}

	return apiErr
}

// mapErrorType maps HTTP status codes to sentinels.
func mapErrorType(statusCode int, header http.Header) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if header != nil && header.Get("X-RateLimit-Remaining") == "0" {
			return ErrRateLimitExceeded
		}
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrServerError
	default:
		return nil
	}
}

var statusPatterns = []struct {
	pattern string
	code    int
}{
	{"500 Internal Server Error", http.StatusInternalServerError},
	{"502 Bad Gateway", http.StatusBadGateway},
	{"503 Service Unavailable", http.StatusServiceUnavailable},
	{"504 Gateway Timeout", http.StatusGatewayTimeout},
	{"429 Too Many Requests", http.StatusTooManyRequests},
	{"403 Forbidden", http.StatusForbidden},
	{"401 Unauthorized", http.StatusUnauthorized},
	{"404 Not Found", http.StatusNotFound},
	{"400 Bad Request", http.StatusBadRequest},
}

// extractStatusCodeFromError recognizes a status line in the error text.
func extractStatusCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	msg := err.Error()
	for _, p := range statusPatterns {
		if strings.Contains(msg, p.pattern) {
			return p.code
		}
	}
	return 0
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsSecondaryRateLimitError reports whether GitHub asked us to back off.
func IsSecondaryRateLimitError(err error) bool {
	var abuseErr *github.AbuseRateLimitError
	return errors.Is(err, ErrSecondaryRateLimit) || errors.As(err, &abuseErr)
}

// IsRateLimitBlockedError reports whether go-github refused to send the
// request because the last response said the limit was exhausted.
func IsRateLimitBlockedError(err error) bool {
	var rateErr *github.RateLimitError
	if !errors.As(err, &rateErr) {
		return false
	}
	return strings.Contains(rateErr.Message, "not making remote request")
}

// ParseRateLimitResetTime returns when the primary limit resets, if err carries it.
func ParseRateLimitResetTime(err error) (time.Time, bool) {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && !rateErr.Rate.Reset.Time.IsZero() {
		return rateErr.Rate.Reset.Time, true
	}
	return time.Time{}, false
}

// secondaryRetryAfter returns the Retry-After GitHub sent with a secondary limit.
func secondaryRetryAfter(err error) (time.Duration, bool) {
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter, true
	}
	return 0, false
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	switch StatusCode(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return IsRateLimitError(err) || IsSecondaryRateLimitError(err)
}

func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// isExpectedEmpty reports statuses that mean "nothing here" for a listing:
// 404 (no such ref or path), 422 (ref namespace rejected) and, where allowed,
// 409 (empty repository).
func isExpectedEmpty(err error, allowConflict bool) bool {
	switch StatusCode(err) {
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	case http.StatusConflict:
		return allowConflict
	}
	return false
}
