package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_WithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := ErrStorage.WithCause(cause).WithDetail("key", "q:1.json")

	assert.Equal(t, "STORAGE_ERROR: storage operation failed (caused by: disk full)", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("save: %w", err), ErrStorage)
	assert.NotErrorIs(t, err, ErrSubmission)
	assert.Equal(t, "STORAGE_ERROR", Code(fmt.Errorf("save: %w", err)))
	assert.Equal(t, "q:1.json", err.Details["key"])
	assert.Empty(t, ErrStorage.Details, "WithDetail must not mutate the sentinel")
}

func TestError_WithMessage(t *testing.T) {
	err := ErrInvalidConfig.WithMessage("unknown submission type %q", "carrier-pigeon")
	assert.Equal(t, `INVALID_CONFIG: unknown submission type "carrier-pigeon"`, err.Error())
	assert.Equal(t, "invalid configuration", ErrInvalidConfig.Message)
}

func TestError_Retryable(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{name: "submission", err: ErrSubmission, retryable: true},
		{name: "storage", err: ErrStorage, retryable: true},
		{name: "validation", err: ErrValidation, retryable: false},
		{name: "invalid config", err: ErrInvalidConfig, retryable: false},
		{name: "forced retryable", err: ErrValidation.AsRetryable(), retryable: true},
		{name: "forced fatal", err: ErrSubmission.AsFatal(), retryable: false},
		{name: "fatal cause", err: ErrSubmission.WithCause(ErrValidation), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.retryable, tt.err.IsFatal())
		})
	}
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrPayloadTooLarge.WithDetail("max_bytes", 10))
	assert.Equal(t, "PAYLOAD_TOO_LARGE", resp["error_code"])
	assert.Equal(t, map[string]interface{}{"max_bytes": 10}, resp["details"])
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusCode(ErrPayloadTooLarge))

	resp = ToErrorResponse(fmt.Errorf("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
	assert.Equal(t, "boom", resp["cause"])
	assert.Equal(t, http.StatusInternalServerError, StatusCode(fmt.Errorf("boom")))
}

func TestPanicError(t *testing.T) {
	assert.NoError(t, PanicError(nil))

	err := PanicError("plugin exploded")
	require.Error(t, err)
	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.IsFatal())
	assert.Equal(t, true, appErr.Details["panic"])
	assert.Contains(t, appErr.Details["stack_trace"], "runtime/debug")

	cause := fmt.Errorf("bad")
	assert.ErrorIs(t, PanicError(cause), cause)
}

func TestGuard(t *testing.T) {
	assert.NoError(t, Guard(func() error { return nil }))

	plain := fmt.Errorf("plain")
	assert.Equal(t, plain, Guard(func() error { return plain }))

	err := Guard(func() error { panic("boom") })
	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
}

func TestSafely(t *testing.T) {
	var got error
	Safely(func() { panic("handler") }, func(err error) { got = err })
	assert.Error(t, got)

	got = nil
	Safely(func() {}, func(err error) { got = err })
	assert.NoError(t, got)

	assert.NotPanics(t, func() { Safely(func() { panic("x") }, nil) })
}
