package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotAllowed    = "SOURCE_NOT_ALLOWED"
	ErrCodeStageNotFound = "STAGE_NOT_FOUND"
	ErrCodeNavTimeout    = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeSessionSetup  = "SESSION_SETUP_FAILED"
	ErrCodeCapacity      = "CAPACITY_EXHAUSTED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternal      = "INTERNAL_ERROR"

	// ErrCodeResolutionFailed is the only code API consumers see for
	// pipeline failures; the specific stage codes stay in internal logs.
	ErrCodeResolutionFailed = "RESOLUTION_FAILED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResolveError is the internal error type carrying an error code and the
// pipeline stage that produced it. It implements the error interface and
// supports error wrapping via Unwrap.
type ResolveError struct {
	Stage   string // empty for errors raised outside the stage chain
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ResolveError) Error() string {
	switch {
	case e.Stage != "" && e.Err != nil:
		return fmt.Sprintf("%s: stage %q: %s: %v", e.Code, e.Stage, e.Message, e.Err)
	case e.Stage != "":
		return fmt.Sprintf("%s: stage %q: %s", e.Code, e.Stage, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// NewResolveError creates a ResolveError not tied to a pipeline stage.
func NewResolveError(code, message string, err error) *ResolveError {
	return &ResolveError{Code: code, Message: message, Err: err}
}

// NewStageError creates a ResolveError attributed to a pipeline stage.
func NewStageError(stage, code, message string, err error) *ResolveError {
	return &ResolveError{Stage: stage, Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
// Stage information is deliberately omitted: chain internals are logged,
// never returned to API consumers.
func (e *ResolveError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
