package api

import (
	"errors"
	"net/http"

	"github.com/calm-red-fox/aitrail/internal/activity"
	"github.com/calm-red-fox/aitrail/internal/alerts"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/scheduler"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// Standard errors
var (
	ErrNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "Resource not found",
		Status:  http.StatusNotFound,
	}

	ErrInternalServer = &Error{
		Code:    ErrCodeInternalError,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}
)

// NewBadRequest creates a bad request error with custom message.
func NewBadRequest(message string) *Error {
	return &Error{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewValidationError creates a validation error with custom message.
func NewValidationError(message string) *Error {
	return &Error{
		Code:    ErrCodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewConflict creates a conflict error with custom message.
func NewConflict(message string) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// NewNotFound creates a not found error with custom message.
func NewNotFound(message string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// FromErr maps domain errors to API errors. Unknown errors become an
// opaque 500; the detail goes to the server log, not the client.
func FromErr(err error) *Error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return NewValidationError(verr.Error())
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, scheduler.ErrUnknownPolicy):
		return NewNotFound(err.Error())
	case errors.Is(err, activity.ErrUnsupportedFormat):
		return NewBadRequest(err.Error())
	case errors.Is(err, alerts.ErrSuppressed):
		return NewConflict(err.Error())
	case errors.Is(err, scheduler.ErrPolicyBusy):
		return NewConflict(err.Error())
	default:
		return ErrInternalServer
	}
}
