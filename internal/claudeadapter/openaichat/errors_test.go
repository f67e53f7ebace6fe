package openaichat

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

func TestToErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "conversion error",
			err:        &ConversionError{Field: "messages[0]", Reason: "bad"},
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_request_error",
		},
		{
			name:       "invalid backend output",
			err:        &ConversionError{Field: "choices[0].message.tool_calls[0].function.arguments", Reason: "bad", Upstream: true},
			wantStatus: http.StatusBadGateway,
			wantType:   "api_error",
		},
		{
			name:       "cancelled",
			err:        backend.CancelledError(),
			wantStatus: backend.StatusClientClosedRequest,
			wantType:   "api_error",
		},
		{
			name:       "transport",
			err:        &backend.Error{Kind: backend.KindTransport, Status: http.StatusBadGateway, Message: "dial failed"},
			wantStatus: http.StatusBadGateway,
			wantType:   "api_error",
		},
		{
			name:       "overloaded",
			err:        &backend.Error{Kind: backend.KindAPI, Status: 529, Message: "busy"},
			wantStatus: 529,
			wantType:   "overloaded_error",
		},
		{
			name:       "request too large",
			err:        &backend.Error{Kind: backend.KindMalformedRequest, Status: http.StatusRequestEntityTooLarge},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   "request_too_large",
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "api_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := toErrorResponse(tt.err)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantType, resp.Err.Type)
			assert.Equal(t, "error", resp.Type)
		})
	}
}

func TestToErrorResponsePassesThrough(t *testing.T) {
	original := types.NewErrorResponse(http.StatusNotFound, "not_found_error", "missing")
	assert.Same(t, original, toErrorResponse(original))
	assert.Nil(t, toErrorResponse(nil))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(backend.CancelledError()))
	assert.True(t, IsCancelled(toErrorResponse(backend.CancelledError())))
	assert.False(t, IsCancelled(errors.New("other")))
}

func TestConversionErrorMessage(t *testing.T) {
	err := &ConversionError{Field: "tool_choice.type", Reason: "unsupported", Err: errors.New("x")}
	assert.Equal(t, "tool_choice.type: unsupported: x", err.Error())
	assert.Equal(t, "unsupported", (&ConversionError{Reason: "unsupported"}).Error())
}
