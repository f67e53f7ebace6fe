package openaichat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// ConversionError reports input that cannot be translated, such as an unknown content
// block kind or tool arguments that are not a JSON object.
type ConversionError struct {
	// Field locates the offending value, e.g. "messages[2].content[0]".
	Field  string
	Reason string
	Err    error
	// Upstream marks invalid backend output, which is not the client's fault.
	Upstream bool
}

func (e *ConversionError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// fromUpstream marks a conversion error as caused by backend output.
func fromUpstream(err error) error {
	var convErr *ConversionError
	if errors.As(err, &convErr) {
		convErr.Upstream = true
	}
	return err
}

// toErrorResponse converts any error into the Claude error envelope. Backend errors keep
// their status code; conversion errors are client errors unless raised on backend output.
func toErrorResponse(err error) *types.ErrorResponse {
	if err == nil {
		return nil
	}

	var errResp *types.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp
	}

	var convErr *ConversionError
	if errors.As(err, &convErr) {
		if convErr.Upstream {
			return types.NewErrorResponse(http.StatusBadGateway, "api_error", "invalid backend response: "+convErr.Error())
		}
		return types.NewErrorResponse(http.StatusBadRequest, "invalid_request_error", convErr.Error())
	}

	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		return types.NewErrorResponse(
			backendErr.Status,
			errorType(backendErr.Kind, backendErr.Status),
			backendErr.Error(),
		)
	}

	return types.NewErrorResponse(http.StatusInternalServerError, "api_error", err.Error())
}

// errorType maps backend failure kinds onto Claude error types.
func errorType(kind backend.Kind, status int) string {
	switch kind {
	case backend.KindAuthentication:
		if status == http.StatusForbidden {
			return "permission_error"
		}
		return "authentication_error"
	case backend.KindRateLimited:
		return "rate_limit_error"
	case backend.KindMalformedRequest:
		if status == http.StatusRequestEntityTooLarge {
			return "request_too_large"
		}
		return "invalid_request_error"
	case backend.KindAPI:
		switch status {
		case http.StatusNotFound:
			return "not_found_error"
		case http.StatusServiceUnavailable, 529:
			return "overloaded_error"
		case http.StatusGatewayTimeout:
			return "timeout_error"
		default:
			return "api_error"
		}
	default:
		// Transport, cancellation and unexpected failures.
		return "api_error"
	}
}

// IsCancelled reports whether err is the error of a request cancelled by its client.
func IsCancelled(err error) bool {
	if errors.Is(err, backend.ErrRequestCancelled) {
		return true
	}
	var errResp *types.ErrorResponse
	return errors.As(err, &errResp) && errResp.Status == backend.StatusClientClosedRequest
}
