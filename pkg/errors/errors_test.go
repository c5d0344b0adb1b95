package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Sentinel error identity ---

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidQuery, ErrStoreUnavailable, ErrIndexWriteFailed, ErrInternal, ErrTimeout,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

func TestTimeout_IsStoreUnavailable(t *testing.T) {
	assert.True(t, errors.Is(ErrTimeout, ErrStoreUnavailable))
	assert.False(t, errors.Is(ErrStoreUnavailable, ErrTimeout))
}

// --- AppError behavior ---

func TestAppError_ErrorString_WithCause(t *testing.T) {
	appErr := &AppError{Code: "STORE_UNAVAILABLE", Message: "search broke", Cause: fmt.Errorf("connection refused")}
	assert.Contains(t, appErr.Error(), "STORE_UNAVAILABLE")
	assert.Contains(t, appErr.Error(), "search broke")
	assert.Contains(t, appErr.Error(), "connection refused")
}

func TestAppError_ErrorString_WithoutCause(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "product not found"}
	assert.Equal(t, "NOT_FOUND: product not found", appErr.Error())
}

func TestAppError_UnwrapsSentinelAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	appErr := StoreUnavailable("search", cause)
	assert.True(t, errors.Is(appErr, ErrStoreUnavailable))
	assert.True(t, errors.Is(appErr, cause))
}

func TestAppError_Unwrap_Empty(t *testing.T) {
	appErr := &AppError{Code: "TEST", Message: "test"}
	assert.Empty(t, appErr.Unwrap())
}

// --- Constructor functions ---

func TestNotFound(t *testing.T) {
	err := NotFound("product", "abc-123")
	require.NotNil(t, err)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Contains(t, err.Message, "product")
	assert.Contains(t, err.Message, "abc-123")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidQuery(t *testing.T) {
	err := InvalidQuery("prefix must be at least 2 characters")
	require.NotNil(t, err)
	assert.Equal(t, "INVALID_QUERY", err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, errors.Is(err, ErrInvalidQuery))
	assert.False(t, IsRetryable(err))
}

func TestStoreUnavailable(t *testing.T) {
	err := StoreUnavailable("elasticsearch index", fmt.Errorf("no route to host"))
	assert.Equal(t, "STORE_UNAVAILABLE", err.Code)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.True(t, IsRetryable(err))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestStoreUnavailable_DeadlineIsTimeout(t *testing.T) {
	err := StoreUnavailable("elasticsearch search", fmt.Errorf("perform request: %w", context.DeadlineExceeded))
	assert.Equal(t, "STORE_TIMEOUT", err.Code)
	assert.Equal(t, http.StatusGatewayTimeout, err.Status)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, IsRetryable(err))
}

func TestIndexWriteFailed(t *testing.T) {
	err := IndexWriteFailed("prod-1", fmt.Errorf("mapper_parsing_exception"))
	assert.Equal(t, "INDEX_WRITE_FAILED", err.Code)
	assert.Contains(t, err.Message, "prod-1")
	assert.True(t, errors.Is(err, ErrIndexWriteFailed))
	assert.False(t, IsRetryable(err))
}

func TestInternal(t *testing.T) {
	err := Internal(fmt.Errorf("segfault"))
	require.NotNil(t, err)
	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Contains(t, err.Error(), "segfault")
}

// --- Wrap ---

func TestUpstream(t *testing.T) {
	err := Upstream("catalog", http.StatusConflict, "listing locked")
	assert.Equal(t, "UPSTREAM_ERROR", err.Code)
	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.Contains(t, err.Error(), "catalog returned status 409")
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.False(t, IsRetryable(err))
}

func TestWrap(t *testing.T) {
	wrapped := Wrap(ErrNotFound, "similar products")
	assert.Contains(t, wrapped.Error(), "similar products")
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

// --- HTTPStatus ---

func TestHTTPStatus_AppError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("product", "1")))
}

func TestHTTPStatus_SentinelErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidQuery, http.StatusBadRequest},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusGatewayTimeout},
		{ErrIndexWriteFailed, http.StatusBadGateway},
		{ErrUpstream, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatus_WrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrInvalidQuery)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(wrapped))
}

func TestHTTPStatus_UnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("unknown")))
}
