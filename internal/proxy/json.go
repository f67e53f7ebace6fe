package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONClaudeError writes a Claude error envelope. The status recorded on the error
// wins; otherwise it is derived from the error type.
func writeJSONClaudeError(ctx context.Context, w http.ResponseWriter, errResp *claudeadapter.ErrorResponse) {
	status := errResp.Status
	if status < http.StatusBadRequest {
		status = statusForErrorType(errResp.Err.Type)
	}
	writeJSON(ctx, w, errResp, status)
}

// newClaudeError builds an error envelope whose status follows from its type.
func newClaudeError(errType, message string) *claudeadapter.ErrorResponse {
	return &claudeadapter.ErrorResponse{
		Type:   "error",
		Err:    claudeadapter.Error{Type: errType, Message: message},
		Status: statusForErrorType(errType),
	}
}

// statusForErrorType maps Claude error types to HTTP status codes.
func statusForErrorType(errType string) int {
	switch errType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "request_too_large":
		return http.StatusRequestEntityTooLarge
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "timeout_error":
		return http.StatusGatewayTimeout
	case "overloaded_error":
		return 529
	default:
		return http.StatusInternalServerError
	}
}
