package recordapi

import (
	"fmt"
	"net/http"
)

// API error codes as constants
const (
	ErrorCodeAuthRequired      = "auth_required"
	ErrorCodeUnknownUser       = "unknown_user"
	ErrorCodeInvalidPassword   = "invalid_password"
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeValidationFailed  = "validation_failed"
	ErrorCodeNotFound          = "not_found"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeServerError       = "server_error"
)

// APIError represents a failed request outcome with its HTTP mapping.
type APIError struct {
	Code    string // machine-readable error code
	Message string // human-readable message returned to the client
	Status  int    // HTTP status code
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, status int) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Common API errors as reusable instances
var (
	// ErrAuthRequired covers every auth-gate failure: missing header,
	// malformed scheme, or a token that does not verify. The message is
	// deliberately generic so the gate leaks nothing about the cause.
	ErrAuthRequired = NewAPIError(ErrorCodeAuthRequired, "Authentication failed.", http.StatusUnauthorized)

	// ErrUnknownUser indicates the login username matched no stored user
	ErrUnknownUser = NewAPIError(ErrorCodeUnknownUser, "Unknown user.", http.StatusUnauthorized)

	// ErrInvalidPassword indicates the login password did not match the stored credential
	ErrInvalidPassword = NewAPIError(ErrorCodeInvalidPassword, "Invalid password.", http.StatusUnauthorized)

	// ErrMalformedBody indicates the request body could not be decoded as JSON
	ErrMalformedBody = NewAPIError(ErrorCodeInvalidRequest, "Invalid request body.", http.StatusBadRequest)

	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = NewAPIError(ErrorCodeNotFound, "", http.StatusNotFound)

	// ErrRateLimited indicates the per-IP login throttle rejected the request
	ErrRateLimited = NewAPIError(ErrorCodeRateLimitExceeded, "Too many requests, please try again later.", http.StatusTooManyRequests)

	// ErrInternal is the fixed response for unexpected faults; detail stays server-side
	ErrInternal = NewAPIError(ErrorCodeServerError, "Something went wrong.", http.StatusInternalServerError)
)

// FieldError describes a single validation failure on a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the per-field detail behind a 422 response.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d invalid field(s)", ErrorCodeValidationFailed, len(e.Fields))
}
