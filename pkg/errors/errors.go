package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the search subsystem. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrStoreUnavailable = errors.New("search store unavailable")
	ErrIndexWriteFailed = errors.New("index write failed")
	ErrInternal         = errors.New("internal error")
	ErrUpstream         = errors.New("upstream service error")

	// ErrTimeout is a StoreUnavailable that was caused by a deadline.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrStoreUnavailable)
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidQuery creates a 400 error for caller-supplied parameters that violate
// a precondition. These are never retried.
func InvalidQuery(message string) *AppError {
	return &AppError{
		Code:    "INVALID_QUERY",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidQuery,
	}
}

// StoreUnavailable creates a 503 error for an unreachable or timed-out index
// store. A context deadline in cause is reported as a timeout.
func StoreUnavailable(op string, cause error) *AppError {
	if errors.Is(cause, context.DeadlineExceeded) {
		return &AppError{
			Code:    "STORE_TIMEOUT",
			Message: fmt.Sprintf("%s: search store timed out", op),
			Status:  http.StatusGatewayTimeout,
			Err:     ErrTimeout,
			Cause:   cause,
		}
	}
	return &AppError{
		Code:    "STORE_UNAVAILABLE",
		Message: fmt.Sprintf("%s: search store unavailable", op),
		Status:  http.StatusServiceUnavailable,
		Err:     ErrStoreUnavailable,
		Cause:   cause,
	}
}

// IndexWriteFailed creates an error for a document the store rejected.
func IndexWriteFailed(id string, cause error) *AppError {
	return &AppError{
		Code:    "INDEX_WRITE_FAILED",
		Message: fmt.Sprintf("document %s could not be indexed", id),
		Status:  http.StatusBadGateway,
		Err:     ErrIndexWriteFailed,
		Cause:   cause,
	}
}

// Upstream creates a 502 error for a failed call to another service.
func Upstream(service string, status int, message string) *AppError {
	return &AppError{
		Code:    "UPSTREAM_ERROR",
		Message: fmt.Sprintf("%s returned status %d: %s", service, status, message),
		Status:  http.StatusBadGateway,
		Err:     ErrUpstream,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     ErrInternal,
		Cause:   err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsRetryable reports whether the caller may retry err with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrIndexWriteFailed), errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
