// Package errors defines the HTTP error taxonomy for the license server.
// Every error response on the wire is a JSON object with an "error" field;
// conflict and OTP errors carry additional actionable detail. Internal
// failures are always collapsed to an opaque message before rendering.
package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int `json:"-"`

	Message      string   `json:"error"`
	Code         string   `json:"code,omitempty"`
	AllowedPlans []string `json:"allowed_plans,omitempty"`
	AttemptsLeft *int     `json:"attempts_left,omitempty"`
	Verified     *bool    `json:"verified,omitempty"`
	Warning      string   `json:"warning,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// Predefined errors for common scenarios
var (
	ErrInvalidRequest = New(http.StatusBadRequest, "Invalid request format")
	ErrInternalServer = New(http.StatusInternalServerError, "Server error")
)

// Validation creates a 400 validation error
func Validation(message string) *APIError {
	return New(http.StatusBadRequest, message)
}

// NotFound creates a 404 error
func NotFound(message string) *APIError {
	return New(http.StatusNotFound, message)
}

// Unauthorized creates a 401 error
func Unauthorized(message string) *APIError {
	return New(http.StatusUnauthorized, message)
}

// Conflict creates a 409 error
func Conflict(message string) *APIError {
	return New(http.StatusConflict, message)
}

// Internal creates an opaque 500 error. The underlying cause is never
// exposed to the caller; it must be logged at the call site.
func Internal(message string) *APIError {
	if message == "" {
		message = "Server error"
	}
	return New(http.StatusInternalServerError, message)
}

// TrialAlreadyUsed creates the trial-reuse conflict response, surfacing
// the paid plans the client may still activate.
func TrialAlreadyUsed(allowedPlans []string) *APIError {
	return &APIError{
		StatusCode:   http.StatusConflict,
		Message:      "Trial already used",
		Code:         "TRIAL_ALREADY_USED",
		AllowedPlans: allowedPlans,
	}
}

// OTPFailed creates an OTP verification failure with verified:false
func OTPFailed(statusCode int, message string) *APIError {
	verified := false
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Verified:   &verified,
	}
}

// OTPInvalidCode creates the wrong-code response with attempts remaining
func OTPInvalidCode(message string, attemptsLeft int) *APIError {
	e := OTPFailed(http.StatusBadRequest, message)
	e.AttemptsLeft = &attemptsLeft
	return e
}
