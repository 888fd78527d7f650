package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"refractoriq/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error          string             `json:"error"`
	Code           string             `json:"code"`
	Details        interface{}        `json:"details,omitempty"`
	SuggestedFixes []errors.FixAction `json:"suggestedFixes,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  string(errors.InternalError),
	}
	var riqErr *errors.RiqError
	if stderrors.As(err, &riqErr) {
		resp.Error = riqErr.Message
		resp.Code = string(riqErr.Code)
		resp.Details = riqErr.Details
		resp.SuggestedFixes = riqErr.SuggestedFixes
	}
	WriteJSON(w, resp, status)
}

// WriteRiqError writes a RiqError with automatic status code mapping
func WriteRiqError(w http.ResponseWriter, err *errors.RiqError) {
	WriteError(w, err, MapErrorToStatus(err.Code))
}

// writeErr maps any error through its code; uncoded errors are internal.
func writeErr(w http.ResponseWriter, err error) {
	WriteError(w, err, MapErrorToStatus(errors.CodeOf(err)))
}

// MapErrorToStatus maps error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.InvalidInput:
		return http.StatusBadRequest // 400
	case errors.Unauthorized:
		return http.StatusUnauthorized // 401
	case errors.NotFound:
		return http.StatusNotFound // 404
	case errors.JobFailed:
		return http.StatusConflict // 409
	case errors.RateLimited:
		return http.StatusTooManyRequests // 429
	case errors.StartFailed, errors.SearchFailed:
		return http.StatusBadGateway // 502
	case errors.BackendUnavailable:
		return http.StatusServiceUnavailable // 503
	case errors.Timeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteRiqError(w, errors.NewRiqError(errors.InvalidInput, message, nil))
}

// NotFound writes a 404 Not Found error
func NotFound(w http.ResponseWriter, message string) {
	WriteRiqError(w, errors.NewRiqError(errors.NotFound, message, nil))
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string, err error) {
	WriteRiqError(w, errors.NewRiqError(errors.InternalError, message, err))
}
