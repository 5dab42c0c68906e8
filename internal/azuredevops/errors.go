package azuredevops

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
)

// APIError is a failed Azure DevOps call with the HTTP status when known.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("azure devops %s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("azure devops %s failed: %s", e.Operation, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// isExpectedEmpty reports statuses that mean "nothing here" for a ref or
// commit listing: 404 (no such repository or ref) and 422 (the service
// rejected the query, as it does for a repository with no commits).
func isExpectedEmpty(err error) bool {
	code, ok := statusCode(err)
	return ok && (code == http.StatusNotFound || code == http.StatusUnprocessableEntity)
}

// statusCode digs the HTTP status out of our own APIError or the SDK's
// WrappedError, which the SDK returns by value.
func statusCode(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.StatusCode, true
	}
	var wrapped azuredevops.WrappedError
	if errors.As(err, &wrapped) && wrapped.StatusCode != nil {
		return *wrapped.StatusCode, true
	}
	var wrappedPtr *azuredevops.WrappedError
	if errors.As(err, &wrappedPtr) && wrappedPtr != nil && wrappedPtr.StatusCode != nil {
		return *wrappedPtr.StatusCode, true
	}
	return 0, false
}

// wrapError attaches the operation name and status to an SDK error.
func wrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	code, _ := statusCode(err)
	return &APIError{Operation: operation, StatusCode: code, Message: err.Error(), Err: err}
}

// isRetryable is true for throttling, server errors and transport failures
// that carry no status, including a per-request timeout. Cancellation and
// client errors are final.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	code, ok := statusCode(err)
	if !ok {
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
