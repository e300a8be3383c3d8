// Package apperr defines the error kinds shared by the gateway. Library
// code surfaces these up to the runner and the HTTP edge; the runner uses
// Retryable to drive provider fallback and the HTTP edge maps Code/Status
// into the wire envelope {"error": {code, message, status_code}}.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error at the API boundary.
type Code string

// Error codes.
const (
	CodeInvalidRunOptions Code = "invalid_run_options"
	CodeBadRequest        Code = "bad_request"
	CodeInvalidFile       Code = "invalid_file"
	CodeEntityTooLarge    Code = "entity_too_large"
	CodeInvalidToken      Code = "invalid_token"
	CodePaymentRequired   Code = "payment_required"
	CodeObjectNotFound    Code = "object_not_found"
	CodeDuplicateValue    Code = "duplicate_value"
	CodeProviderTransient Code = "provider_transient"
	CodeProviderTerminal  Code = "provider_terminal"
	CodeInternal          Code = "internal"
)

// Error is the typed application error. Retryable marks provider failures
// the runner may retry against the next fallback candidate; Fatal marks
// background-task failures that must not be retried.
type Error struct {
	Code       Code
	Status     int
	Message    string
	ObjectType string
	Retryable  bool
	Fatal      bool
	cause      error
}

func (e *Error) Error() string {
	if e.ObjectType != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.ObjectType, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// InvalidRunOptions reports an unknown model/provider or bad run options.
func InvalidRunOptions(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRunOptions, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports a malformed request (missing template variable,
// invalid identifier, unparsable body).
func BadRequest(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// InvalidFile reports an unsupported file url or data payload.
func InvalidFile(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidFile, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// EntityTooLarge reports an upload exceeding the size cap.
func EntityTooLarge(format string, args ...any) *Error {
	return &Error{Code: CodeEntityTooLarge, Status: http.StatusRequestEntityTooLarge, Message: fmt.Sprintf(format, args...)}
}

// InvalidToken reports a JWT or API-key verification failure.
func InvalidToken(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidToken, Status: http.StatusUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// PaymentRequired reports a tenant blocked by the credit gate.
func PaymentRequired(format string, args ...any) *Error {
	return &Error{Code: CodePaymentRequired, Status: http.StatusPaymentRequired, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing object, typed by objectType.
func NotFound(objectType, format string, args ...any) *Error {
	return &Error{
		Code:       CodeObjectNotFound,
		Status:     http.StatusNotFound,
		ObjectType: objectType,
		Message:    fmt.Sprintf(format, args...),
	}
}

// Duplicate reports an idempotency conflict.
func Duplicate(format string, args ...any) *Error {
	return &Error{Code: CodeDuplicateValue, Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// ProviderTransient wraps a retryable provider failure (rate limit,
// network error, 5xx).
func ProviderTransient(err error, format string, args ...any) *Error {
	return &Error{
		Code:      CodeProviderTransient,
		Status:    http.StatusBadGateway,
		Message:   fmt.Sprintf(format, args...),
		Retryable: true,
		cause:     err,
	}
}

// ProviderTerminal wraps a non-retryable provider failure (content safety,
// auth, quota). The provider's HTTP status passes through when known.
func ProviderTerminal(status int, err error, format string, args ...any) *Error {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &Error{
		Code:    CodeProviderTerminal,
		Status:  status,
		Message: fmt.Sprintf(format, args...),
		cause:   err,
	}
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf(format, args...),
		cause:   err,
	}
}

// AsFatal marks the error as non-retryable for background tasks.
func (e *Error) AsFatal() *Error {
	e.Fatal = true
	return e
}

// CodeOf extracts the error code, defaulting to internal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP status, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the runner may retry the request against the
// next fallback candidate.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsFatal reports whether a background task must not retry the error.
func IsFatal(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fatal
	}
	return false
}
