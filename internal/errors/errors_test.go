package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewRiqError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewRiqError(BackendUnavailable, "backend unreachable", cause)

	if err.Code != BackendUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, BackendUnavailable)
	}
	if err.Message != "backend unreachable" {
		t.Errorf("Message = %q", err.Message)
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestRiqError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      StartFailed,
			message:   "could not start analysis",
			cause:     errors.New("HTTP 500"),
			wantParts: []string{"START_FAILED", "could not start analysis", "HTTP 500"},
		},
		{
			name:      "without cause",
			code:      InvalidInput,
			message:   "Please enter a repository URL.",
			wantParts: []string{"INVALID_INPUT", "Please enter a repository URL."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRiqError(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestRiqError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewRiqError(InternalError, "something went wrong", cause)
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if NewRiqError(Timeout, "timed out", nil).Unwrap() != nil {
		t.Error("Unwrap() on error without cause should return nil")
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("poll: %w", NewRiqError(JobFailed, "timeout", nil))
	if got := CodeOf(wrapped); got != JobFailed {
		t.Errorf("CodeOf(wrapped) = %v, want %v", got, JobFailed)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
	if !Is(wrapped, JobFailed) {
		t.Error("Is(wrapped, JobFailed) = false")
	}
	if Is(wrapped, NotFound) {
		t.Error("Is(wrapped, NotFound) = true")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewRiqError(NotFound, "job not found", nil).WithDetails(map[string]string{"jobId": "abc"})
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(Timeout); fixes != nil {
		t.Errorf("GetSuggestedFixes(Timeout) = %v, want nil", fixes)
	}
	if fixes := GetSuggestedFixes(JobFailed); len(fixes) == 0 {
		t.Error("GetSuggestedFixes(JobFailed) should not be empty")
	}
}
