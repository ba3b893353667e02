package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error at the point where it happened so callers never
// have to inspect message text.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindTransient    Kind = "transient"
	KindUnexpected   Kind = "unexpected"
)

// Error represents an application error
type Error struct {
	Kind      Kind   `json:"kind"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error. The kind is derived from the HTTP status code.
func New(code int, message string, err error) *Error {
	return &Error{
		Kind:    kindForStatus(code),
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Transient wraps an infrastructure failure that is worth retrying.
func Transient(message string, err error) *Error {
	return &Error{
		Kind:      KindTransient,
		Code:      http.StatusServiceUnavailable,
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}

// IsRetryable reports whether any error in the chain was tagged retryable.
func IsRetryable(err error) bool {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// KindOf returns the kind of the first *Error in the chain, or KindUnexpected.
func KindOf(err error) Kind {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// StatusFor maps a kind to its HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindUnauthorized
	case code == http.StatusForbidden:
		return KindForbidden
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusConflict:
		return KindConflict
	case code == http.StatusServiceUnavailable:
		return KindTransient
	case code >= 400 && code < 500:
		return KindValidation
	default:
		return KindUnexpected
	}
}

// ErrorMiddleware renders the last error pushed with c.Error as the uniform
// JSON envelope.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var appErr *Error
		if !stderrors.As(err, &appErr) {
			appErr = New(http.StatusInternalServerError, "Internal server error", err)
		}

		message := appErr.Message
		if appErr.Kind == KindTransient {
			message = "Service temporarily unavailable, please retry"
		}
		c.AbortWithStatusJSON(StatusFor(appErr.Kind), gin.H{
			"error": message,
			"code":  string(appErr.Kind),
		})
	}
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrForbidden          = New(http.StatusForbidden, "Forbidden", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = Transient("Service unavailable", nil)
)
