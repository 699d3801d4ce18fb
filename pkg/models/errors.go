package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of a relay failure.
type ErrorType string

const (
	// ErrorTypeInvalidRequest is a caller error detected before any upstream call.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypeUpstream is a provider failure: transport, non-2xx or malformed payload.
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeInternal is an unexpected fault inside the relay.
	ErrorTypeInternal ErrorType = "internal"
)

// Messages returned to callers for the non-validation categories.
const (
	UpstreamErrorMessage = "AI service error"
	InternalErrorMessage = "Internal server error"
)

// RelayError is a classified relay failure.
type RelayError struct {
	Type    ErrorType
	Message string
	// Details is the human-readable provider message for upstream errors.
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap allows error unwrapping.
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP status code for the error.
func (e *RelayError) StatusCode() int {
	if e.Type == ErrorTypeInvalidRequest {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Body renders the error as a caller-facing response. Internal errors never
// carry details.
func (e *RelayError) Body() ErrorResponse {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return ErrorResponse{Error: e.Message}
	case ErrorTypeUpstream:
		details := e.Details
		if details == "" {
			details = "Unknown error"
		}
		return ErrorResponse{Error: UpstreamErrorMessage, Details: details}
	default:
		return ErrorResponse{Error: InternalErrorMessage}
	}
}

// NewInvalidRequestError creates a validation error.
func NewInvalidRequestError(message string, cause error) *RelayError {
	return &RelayError{Type: ErrorTypeInvalidRequest, Message: message, Cause: cause}
}

// NewUpstreamError creates a provider error.
func NewUpstreamError(details string, cause error) *RelayError {
	return &RelayError{Type: ErrorTypeUpstream, Message: UpstreamErrorMessage, Details: details, Cause: cause}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *RelayError {
	return &RelayError{Type: ErrorTypeInternal, Message: message, Cause: cause}
}

// AsRelayError classifies err, treating anything unclassified as internal.
func AsRelayError(err error) *RelayError {
	var re *RelayError
	if errors.As(err, &re) {
		return re
	}
	return NewInternalError(InternalErrorMessage, err)
}

// IsType reports whether err is a RelayError of the given type.
func IsType(err error, t ErrorType) bool {
	var re *RelayError
	return errors.As(err, &re) && re.Type == t
}
