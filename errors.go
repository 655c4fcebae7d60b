package ap2

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sumup/ap2/store"
)

// ErrorType classifies failures surfaced to the agent-tool layer.
type ErrorType string

const (
	NotFound          ErrorType = "not_found"          // Flight or mandate absent.
	Unavailable       ErrorType = "unavailable"        // No inventory left.
	DuplicateMandate  ErrorType = "duplicate_mandate"  // Mandate id already stored.
	InvalidTransition ErrorType = "invalid_transition" // Status precondition violated.
	ValidationError   ErrorType = "validation_error"   // Missing or malformed field.
	Unauthorized      ErrorType = "unauthorized"       // Transport authentication failed.
	ProcessingError   ErrorType = "processing_error"   // Unexpected internal failure.
)

// ResultStatusError is the status value carried by every failed result.
const ResultStatusError = "error"

// Error is the tagged failure value returned by every AP2 operation. It
// marshals to {"status":"error","type":...,"message":...}.
type Error struct {
	Status  string    `json:"status"`
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   *string   `json:"param,omitempty"`

	status int
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// HTTPStatus reports the status code used when the error crosses HTTP.
func (e *Error) HTTPStatus() int {
	if e == nil || e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

type errorOption func(*Error)

// WithOffendingParam sets the JSON path for the field that triggered the error.
func WithOffendingParam(jsonPath string) errorOption {
	return func(er *Error) {
		er.Param = &jsonPath
	}
}

// WithStatusCode overrides the HTTP status code returned to the client.
func WithStatusCode(status int) errorOption {
	return func(er *Error) {
		er.status = status
	}
}

// NewNotFoundError reports an unknown flight or mandate.
func NewNotFoundError(message string, opts ...errorOption) *Error {
	return newError(NotFound, message, append([]errorOption{WithStatusCode(http.StatusNotFound)}, opts...)...)
}

// NewUnavailableError reports exhausted inventory.
func NewUnavailableError(message string, opts ...errorOption) *Error {
	return newError(Unavailable, message, append([]errorOption{WithStatusCode(http.StatusConflict)}, opts...)...)
}

// NewDuplicateMandateError reports an id collision on insert.
func NewDuplicateMandateError(message string, opts ...errorOption) *Error {
	return newError(DuplicateMandate, message, append([]errorOption{WithStatusCode(http.StatusConflict)}, opts...)...)
}

// NewInvalidTransitionError reports a violated status precondition.
func NewInvalidTransitionError(message string, opts ...errorOption) *Error {
	return newError(InvalidTransition, message, append([]errorOption{WithStatusCode(http.StatusConflict)}, opts...)...)
}

// NewValidationError reports a missing or malformed field.
func NewValidationError(message string, opts ...errorOption) *Error {
	return newError(ValidationError, message, append([]errorOption{WithStatusCode(http.StatusBadRequest)}, opts...)...)
}

// NewUnauthorizedError reports a rejected credential or signature.
func NewUnauthorizedError(message string, opts ...errorOption) *Error {
	return newError(Unauthorized, message, append([]errorOption{WithStatusCode(http.StatusUnauthorized)}, opts...)...)
}

// NewProcessingError reports an unexpected internal failure.
func NewProcessingError(message string, opts ...errorOption) *Error {
	return newError(ProcessingError, message, append([]errorOption{WithStatusCode(http.StatusInternalServerError)}, opts...)...)
}

func newError(typ ErrorType, message string, opts ...errorOption) *Error {
	errPayload := &Error{
		Status:  ResultStatusError,
		Type:    typ,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(errPayload)
	}
	return errPayload
}

// IsErrorType reports whether err carries an *Error of the given type.
func IsErrorType(err error, typ ErrorType) bool {
	var apErr *Error
	if !errors.As(err, &apErr) {
		return false
	}
	return apErr.Type == typ
}

// storeError translates store sentinels into tagged AP2 errors.
func storeError(kind, id string, err error) error {
	var apErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apErr):
		return apErr
	case errors.Is(err, store.ErrNotFound):
		return NewNotFoundError(fmt.Sprintf("%s %s not found", kind, id))
	case errors.Is(err, store.ErrDuplicate):
		return NewDuplicateMandateError(fmt.Sprintf("%s %s already exists", kind, id))
	default:
		return NewProcessingError(fmt.Sprintf("%s %s: %v", kind, id, err))
	}
}
