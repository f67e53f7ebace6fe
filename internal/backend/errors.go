package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// StatusClientClosedRequest is reported when the client went away before the backend
// call completed.
const StatusClientClosedRequest = 499

// ErrRequestCancelled marks calls aborted through the cancellation registry.
var ErrRequestCancelled = errors.New("request cancelled by client")

// Kind classifies backend failures.
type Kind int

const (
	KindUnexpected Kind = iota
	KindAuthentication
	KindRateLimited
	KindMalformedRequest
	KindAPI
	KindTransport
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformedRequest:
		return "malformed_request"
	case KindAPI:
		return "api"
	case KindTransport:
		return "transport"
	case KindCancelled:
		return "cancelled"
	default:
		return "unexpected"
	}
}

// Error is a classified backend failure. Message always holds the original detail;
// Guidance is only set when the detail matched a known failure pattern.
type Error struct {
	Kind     Kind
	Status   int
	Message  string
	Guidance string
	Err      error
}

func (e *Error) Error() string {
	if e.Guidance == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Guidance
	}
	return fmt.Sprintf("%s (%s)", e.Guidance, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CancelledError returns the error reported for requests aborted by the client.
func CancelledError() *Error {
	return &Error{
		Kind:    KindCancelled,
		Status:  StatusClientClosedRequest,
		Message: "Request cancelled by client",
		Err:     ErrRequestCancelled,
	}
}

// classify maps any error produced while talking to the backend onto an *Error.
func classify(err error, variant Variant) *Error {
	if err == nil {
		return nil
	}

	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr
	}

	if errors.Is(err, ErrRequestCancelled) || errors.Is(err, context.Canceled) {
		return CancelledError()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:    KindTransport,
			Status:  http.StatusBadGateway,
			Message: "backend request timed out",
			Err:     err,
		}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		detail := apiErr.Message
		if code := codeString(apiErr.Code); code != "" && !strings.Contains(detail, code) {
			detail = fmt.Sprintf("%s [%s]", detail, code)
		}
		return fromStatus(apiErr.HTTPStatusCode, detail, detail, variant, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		raw := string(reqErr.Body)
		detail := extractErrorMessage(reqErr.Body)
		if detail == "" && reqErr.Err != nil {
			detail = reqErr.Err.Error()
			raw = detail
		}
		return fromStatus(reqErr.HTTPStatusCode, detail, raw, variant, err)
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		detail := extractErrorMessage(statusErr.Body)
		if detail == "" {
			detail = http.StatusText(statusErr.StatusCode)
		}
		return fromStatus(statusErr.StatusCode, detail, string(statusErr.Body), variant, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &Error{
			Kind:    KindTransport,
			Status:  http.StatusBadGateway,
			Message: err.Error(),
			Err:     err,
		}
	}

	return &Error{
		Kind:    KindUnexpected,
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Err:     err,
	}
}

// fromStatus builds an *Error from a backend HTTP status. raw is the full error payload
// used for pattern matching, detail the message shown to clients.
func fromStatus(status int, detail, raw string, variant Variant, err error) *Error {
	e := &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: detail,
		Err:     err,
	}
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}

	haystack := raw + " " + detail

	if variant == VariantCustom {
		if code, ok := matchCustomCode(haystack); ok {
			e.Kind = code.kind
			e.Status = code.status
			e.Guidance = code.guidance
			return e
		}
	}

	e.Guidance = guidanceFor(haystack)
	return e
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge ||
		status == http.StatusUnprocessableEntity:
		return KindMalformedRequest
	case status >= 400:
		return KindAPI
	default:
		return KindUnexpected
	}
}

// customCode describes a numeric error code of the custom provider.
type customCode struct {
	markers  []string
	kind     Kind
	status   int
	guidance string
}

var customCodes = []customCode{
	{
		markers:  []string{"300001", "鉴权失败"},
		kind:     KindAuthentication,
		status:   http.StatusUnauthorized,
		guidance: "Authentication failed. Please check your API key configuration.",
	},
	{
		markers:  []string{"300002", "权限被拒绝"},
		kind:     KindAuthentication,
		status:   http.StatusForbidden,
		guidance: "Permission denied. Your API key does not have access to this resource.",
	},
	{
		markers:  []string{"200001", "200002", "200003", "200004", "200005"},
		kind:     KindMalformedRequest,
		status:   http.StatusBadRequest,
		guidance: "Invalid request parameters. Please check your request format.",
	},
	{
		markers:  []string{"400001", "400002"},
		kind:     KindAPI,
		status:   http.StatusInternalServerError,
		guidance: "Server error. Please try again later.",
	},
}

func matchCustomCode(s string) (customCode, bool) {
	for _, code := range customCodes {
		for _, marker := range code.markers {
			if strings.Contains(s, marker) {
				return code, true
			}
		}
	}
	return customCode{}, false
}

// guidanceFor returns remediation text for well-known failure messages, or "" when
// nothing matches.
func guidanceFor(s string) string {
	lower := strings.ToLower(s)

	switch {
	case strings.Contains(lower, "unsupported_country_region_territory") ||
		strings.Contains(lower, "country, region, or territory not supported"):
		return "The backend provider does not serve your region. " +
			"Route requests through a supported region or configure a different backend base URL."
	case strings.Contains(lower, "invalid_api_key") || strings.Contains(lower, "unauthorized"):
		return "Invalid API key. Please check the backend API key configuration."
	case strings.Contains(lower, "rate_limit") || strings.Contains(lower, "quota"):
		return "Rate limit exceeded. Please wait and try again, or upgrade your API plan."
	case strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return "Model not found. Please check the model mapping configuration."
	case strings.Contains(lower, "billing") || strings.Contains(lower, "payment"):
		return "Billing issue. Please check the backend account billing status."
	default:
		return ""
	}
}

// extractErrorMessage pulls a human-readable message out of an error payload. Both the
// OpenAI {"error":{"message":...}} shape and flat {"msg":...} bodies are understood.
func extractErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var payload struct {
		Message string          `json:"message"`
		Msg     string          `json:"msg"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return trimmed
	}

	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(payload.Error, &flat) == nil && flat != "" {
			return flat
		}
	}

	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Msg != "":
		return payload.Msg
	default:
		return trimmed
	}
}

func codeString(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

// statusError is returned by the custom wire variant for non-200 responses.
type statusError struct {
	StatusCode int
	Body       []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}
