// Package errors defines the coded errors shared by the client, its
// transports and the collector.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

var (
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrUnauthorized       = NewError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrPayloadTooLarge    = NewError("PAYLOAD_TOO_LARGE", "payload too large", http.StatusRequestEntityTooLarge)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
	ErrInvalidConfig      = NewError("INVALID_CONFIG", "invalid configuration", http.StatusInternalServerError)
	ErrStorage            = NewError("STORAGE_ERROR", "storage operation failed", http.StatusInternalServerError)
	ErrSubmission         = NewError("SUBMISSION_ERROR", "submission failed", http.StatusBadGateway)
	ErrSettings           = NewError("SETTINGS_ERROR", "settings update failed", http.StatusBadGateway)
	ErrPluginFailed       = NewError("PLUGIN_FAILED", "plugin failed", http.StatusInternalServerError)
)

// Codes that describe a request or configuration problem. Repeating the
// same call cannot succeed, so they are fatal unless marked otherwise.
var permanentCodes = map[string]bool{
	ErrValidation.Code:      true,
	ErrUnauthorized.Code:    true,
	ErrPayloadTooLarge.Code: true,
	ErrInvalidConfig.Code:   true,
}

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type retryMode uint8

const (
	retryByCode retryMode = iota
	retryAlways
	retryNever
)

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
	retry   retryMode
}

func NewError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so a derived error still
// satisfies errors.Is against its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) IsRetryable() bool {
	switch e.retry {
	case retryAlways:
		return true
	case retryNever:
		return false
	}

	var fatalErr FatalError
	if e.Cause != nil && errors.As(e.Cause, &fatalErr) && fatalErr.IsFatal() {
		return false
	}
	return !permanentCodes[e.Code]
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) clone() *Error {
	err := *e
	err.Details = maps.Clone(e.Details)
	return &err
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

// WithMessage replaces the human readable text and keeps the code.
func (e *Error) WithMessage(format string, args ...any) *Error {
	err := e.clone()
	err.Message = fmt.Sprintf(format, args...)
	return err
}

// WithDetail returns a copy of e with key set; e itself is not modified.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	if err.Details == nil {
		err.Details = make(map[string]interface{}, 1)
	}
	err.Details[key] = value
	return err
}

func (e *Error) AsRetryable() *Error {
	err := e.clone()
	err.retry = retryAlways
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	err.retry = retryNever
	return err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

// Code returns the code of the outermost *Error in err's chain, or "".
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders err as the JSON body the collector returns.
// Errors without a code are reported as INTERNAL_ERROR.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if appErr.Cause != nil {
		response["cause"] = appErr.Cause.Error()
	}
	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}
	return response
}
