package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"vistahub/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeBadGateway         ErrorCode = "BAD_GATEWAY"

	// Codes mirroring this hub's domain sentinel errors, so handlers can
	// translate a returned domain error straight into an HTTP response
	// without each handler re-deriving the status code itself.
	ErrCodeUnknownViewer     ErrorCode = "UNKNOWN_VIEWER"
	ErrCodeNoBroadcaster     ErrorCode = "NO_BROADCASTER"
	ErrCodeNegotiationFailed ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeSessionClosed     ErrorCode = "SESSION_CLOSED"
	ErrCodeWrongState        ErrorCode = "WRONG_STATE"
	ErrCodeOutboundQueueFull ErrorCode = "OUTBOUND_QUEUE_FULL"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	// Try to unwrap
	type unwrapper interface {
		Unwrap() error
	}

	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}

	return nil
}

// FromDomainError translates one of this hub's domain sentinel errors
// into the AppError shape the HTTP/WS error surface speaks, so a
// handler can return a bare domain error and still get a sensible
// status code out the other end. Errors that aren't one of the known
// sentinels fall through to a generic internal error.
func FromDomainError(err error) *AppError {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, domain.ErrUnknownViewer):
		return WrapError(err, ErrCodeUnknownViewer, "unknown viewer", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrBadInput):
		return WrapError(err, ErrCodeInvalidInput, "bad input", http.StatusBadRequest)
	case stderrors.Is(err, domain.ErrNoBroadcaster):
		return WrapError(err, ErrCodeNoBroadcaster, "no active broadcaster", http.StatusServiceUnavailable)
	case stderrors.Is(err, domain.ErrNegotiationFailed):
		return WrapError(err, ErrCodeNegotiationFailed, "negotiation failed", http.StatusBadGateway)
	case stderrors.Is(err, domain.ErrSessionClosed):
		return WrapError(err, ErrCodeSessionClosed, "viewer session closed", http.StatusGone)
	case stderrors.Is(err, domain.ErrWrongState):
		return WrapError(err, ErrCodeWrongState, "operation invalid in current state", http.StatusConflict)
	case stderrors.Is(err, domain.ErrOutboundQueueFull):
		return WrapError(err, ErrCodeOutboundQueueFull, "outbound queue full", http.StatusServiceUnavailable)
	default:
		return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}
