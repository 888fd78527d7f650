package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// InvalidInput indicates a request rejected locally before reaching the backend
	InvalidInput ErrorCode = "INVALID_INPUT"
	// StartFailed indicates the backend refused to start an analysis
	StartFailed ErrorCode = "START_FAILED"
	// BackendUnavailable indicates the analysis backend could not be reached
	BackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// JobFailed indicates the backend reported the job as FAILED
	JobFailed ErrorCode = "JOB_FAILED"
	// NotFound indicates a job, result or history entry does not exist
	NotFound ErrorCode = "NOT_FOUND"
	// SearchFailed indicates a search against analysed results failed
	SearchFailed ErrorCode = "SEARCH_FAILED"
	// Unauthorized indicates missing or invalid credentials
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// RateLimited indicates too many requests from one client
	RateLimited ErrorCode = "RATE_LIMITED"
	// Timeout indicates a request timed out
	Timeout ErrorCode = "TIMEOUT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// RiqError represents a RefractorIQ error with code, message, and suggestions
type RiqError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// NewRiqError creates a new RiqError. Suggested fixes default to the ones
// registered for the code.
func NewRiqError(code ErrorCode, message string, cause error) *RiqError {
	return &RiqError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *RiqError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *RiqError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *RiqError) WithDetails(details interface{}) *RiqError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first RiqError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var riqErr *RiqError
	if stderrors.As(err, &riqErr) {
		return riqErr.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var riqErr *RiqError
	return stderrors.As(err, &riqErr) && riqErr.Code == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	BackendUnavailable: {
		{
			Type:        RunCommand,
			Command:     "refractoriq config show",
			Safe:        true,
			Description: "Check the configured backend URL",
		},
	},
	Unauthorized: {
		{
			Type:        RunCommand,
			Command:     "refractoriq config env",
			Safe:        true,
			Description: "Set REFRACTORIQ_BACKEND_TOKEN for the analysis backend",
		},
	},
	JobFailed: {
		{
			Type:        RunCommand,
			Command:     "refractoriq analyze <repo-url>",
			Safe:        true,
			Description: "Resubmit the analysis",
		},
	},
	NotFound: {
		{
			Type:        RunCommand,
			Command:     "refractoriq history list",
			Safe:        true,
			Description: "List known analysis runs",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
