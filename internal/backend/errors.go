package backend

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"refractoriq/internal/errors"
)

// RemoteError is a non-2xx response (or a 2xx carrying only an error) from the backend.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404 not found error.
func (e *RemoteError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized returns true for 401 and 403 responses.
func (e *RemoteError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// parseErrorResponse extracts the server's message from an `error` field or a
// FastAPI `detail` field, which may be a string or a list of validation errors.
func parseErrorResponse(statusCode int, body []byte) error {
	var resp struct {
		Error  string          `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" || len(msg) > 200 {
			msg = fmt.Sprintf("HTTP %d", statusCode)
		}
		return &RemoteError{StatusCode: statusCode, Message: msg}
	}

	msg := resp.Error
	if msg == "" {
		msg = detailMessage(resp.Detail)
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", statusCode)
	}
	return &RemoteError{StatusCode: statusCode, Message: msg}
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if len(it.Loc) > 0 {
				parts = append(parts, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				parts = append(parts, it.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}

// ErrorCode classifies a client error into a stable error code.
func ErrorCode(err error) errors.ErrorCode {
	var remote *RemoteError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &remote):
		switch {
		case remote.IsUnauthorized():
			return errors.Unauthorized
		case remote.IsNotFound():
			return errors.NotFound
		case remote.StatusCode == http.StatusGatewayTimeout:
			return errors.Timeout
		case remote.StatusCode >= 500:
			return errors.BackendUnavailable
		}
		return errors.InvalidInput
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Timeout
	case stderrors.As(err, &netErr) && netErr.Timeout():
		return errors.Timeout
	case stderrors.Is(err, context.Canceled):
		return errors.InternalError
	}
	return errors.BackendUnavailable
}
