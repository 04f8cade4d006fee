package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/nkkko/simsub/internal/domain"
)

// ErrorType defines the type of error
type ErrorType string

const (
	// ErrorTypeValidation represents a malformed call
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeNotFound represents an unknown method or record
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeForbidden represents a caller lacking a privilege
	ErrorTypeForbidden ErrorType = "forbidden"

	// ErrorTypeUnavailable represents a backend that cannot serve the call
	ErrorTypeUnavailable ErrorType = "unavailable"

	// ErrorTypeTimeout represents a call that ran out of time
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeInternal represents an internal server error
	ErrorTypeInternal ErrorType = "internal"
)

// APIError represents a standardized API error
type APIError struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	HTTPCode  int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Code, e.Message)
}

// WithRequestID adds a request ID to the error
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

func newError(t ErrorType, httpCode int, code, message string) *APIError {
	return &APIError{Type: t, Code: code, Message: message, HTTPCode: httpCode}
}

// ValidationError creates a new validation error
func ValidationError(code string, message string) *APIError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, code, message)
}

// NotFoundError creates a new not found error
func NotFoundError(code string, message string) *APIError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, code, message)
}

// ForbiddenError creates a new forbidden error
func ForbiddenError(code string, message string) *APIError {
	return newError(ErrorTypeForbidden, http.StatusForbidden, code, message)
}

// UnavailableError creates a new service unavailable error
func UnavailableError(code string, message string) *APIError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable, code, message)
}

// TimeoutError creates a new timeout error
func TimeoutError(code string, message string) *APIError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, code, message)
}

// InternalError creates a new internal server error
func InternalError(code string, message string) *APIError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, code, message)
}

// FromError converts err into an API error. Domain sentinels keep their
// meaning across the wire; anything else is internal.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case stderrors.Is(err, domain.ErrPermissionDenied):
		return ForbiddenError("permission_denied", err.Error())
	case stderrors.Is(err, domain.ErrInvalidArgument), stderrors.Is(err, domain.ErrUnusableSubscriptionID):
		return ValidationError("invalid_argument", err.Error())
	case stderrors.Is(err, domain.ErrNotFound):
		return NotFoundError("subscription_not_found", err.Error())
	case stderrors.Is(err, domain.ErrRemoteUnavailable):
		return UnavailableError("backend_unavailable", err.Error())
	case stderrors.Is(err, context.DeadlineExceeded):
		return TimeoutError("deadline_exceeded", err.Error())
	}
	return InternalError("internal_error", err.Error())
}

// ToDomain turns an error type received from the server back into the
// matching domain sentinel, wrapped with message
func ToDomain(t ErrorType, message string) error {
	switch t {
	case ErrorTypeForbidden:
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, message)
	case ErrorTypeValidation:
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, message)
	case ErrorTypeNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, message)
	case ErrorTypeTimeout:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, message)
	}
	return fmt.Errorf("%w: %s", domain.ErrRemoteUnavailable, message)
}
