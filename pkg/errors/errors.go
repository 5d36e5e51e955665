package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
	ErrPolicy
	ErrTooManyRequests
)

// Queue failures. Callers match them with errors.Is; the store and service
// layers wrap them with context.
var (
	ErrDuplicateActiveTicket = stderrors.New("contact already has an active ticket")
	ErrTicketNotFound        = stderrors.New("ticket not found")
	ErrInvalidTransition     = stderrors.New("invalid status transition")
	ErrQueueEmpty            = stderrors.New("no patients waiting in queue")
	ErrClinicClosed          = stderrors.New("clinic is currently closed")
	ErrQueueFull             = stderrors.New("queue is currently full")
	ErrAllocationFailure     = stderrors.New("failed to allocate ticket number")
	ErrStoreUnavailable      = stderrors.New("queue store unavailable")
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "forbidden",
		Err:     err,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// HTTPStatus maps an error chain to the status code the web layer returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrTicketNotFound), Is(err, ErrQueueEmpty):
		return http.StatusNotFound
	case Is(err, ErrDuplicateActiveTicket), Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case Is(err, ErrClinicClosed), Is(err, ErrQueueFull):
		return http.StatusBadRequest
	}

	var appErr *AppError
	if As(err, &appErr) {
		switch appErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrBadRequest, ErrPolicy:
			return http.StatusBadRequest
		case ErrUnauthorized:
			return http.StatusUnauthorized
		case ErrForbidden:
			return http.StatusForbidden
		case ErrConflict:
			return http.StatusConflict
		case ErrTooManyRequests:
			return http.StatusTooManyRequests
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the text safe to show a client for err.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
