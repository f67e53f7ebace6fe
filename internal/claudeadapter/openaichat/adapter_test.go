package openaichat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/cancellation"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc, opts ...Option) (*CreateMessageAdapter, *cancellation.Registry) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	registry := cancellation.New()
	client, err := backend.New(backend.Config{
		Variant: backend.VariantOpenAI,
		BaseURL: srv.URL + "/v1",
		APIKey:  "sk-test",
	}, registry)
	require.NoError(t, err)

	opts = append([]Option{WithCancellationChecker(registry)}, opts...)
	adapter, err := NewCreateMessageAdapter(client, staticResolver{"claude-3-5-haiku-latest": "gpt-4o-mini"}, opts...)
	require.NoError(t, err)
	return adapter, registry
}

func messagesRequest(stream bool) types.MessagesRequest {
	return types.MessagesRequest{
		Model:     "claude-3-5-haiku-latest",
		MaxTokens: 64,
		Stream:    stream,
		Messages: []types.MessageParam{{
			Role:    types.RoleUser,
			Content: types.ContentBlocks{types.NewTextBlock("Hi")},
		}},
	}
}

func TestProcessRequest(t *testing.T) {
	adapter, registry := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Nil(t, body["stream"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-9","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	})

	msg, err := adapter.ProcessRequest(context.Background(), messagesRequest(false), "req-1")
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-haiku-latest", msg.Model)
	assert.Equal(t, "Hello!", msg.Content[0].OfText.Text)
	assert.Equal(t, types.Usage{InputTokens: 5, OutputTokens: 2}, msg.Usage)
	assert.Zero(t, registry.Len())
}

func TestProcessRequestBackendError(t *testing.T) {
	tests := []struct {
		status   int
		wantType string
	}{
		{http.StatusUnauthorized, "authentication_error"},
		{http.StatusForbidden, "permission_error"},
		{http.StatusTooManyRequests, "rate_limit_error"},
		{http.StatusBadRequest, "invalid_request_error"},
		{http.StatusNotFound, "not_found_error"},
		{http.StatusServiceUnavailable, "overloaded_error"},
		{http.StatusInternalServerError, "api_error"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
			})

			_, err := adapter.ProcessRequest(context.Background(), messagesRequest(false), "")

			var errResp *types.ErrorResponse
			require.ErrorAs(t, err, &errResp)
			assert.Equal(t, tt.status, errResp.Status)
			assert.Equal(t, tt.wantType, errResp.Err.Type)
			assert.Contains(t, errResp.Err.Message, "nope")
		})
	}
}

func TestProcessRequestConversionError(t *testing.T) {
	called := false
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := messagesRequest(false)
	req.Messages[0].Content = types.ContentBlocks{{OfImage: &types.ImageBlock{
		Type:   types.BlockTypeImage,
		Source: types.ImageSource{Type: "file"},
	}}}

	_, err := adapter.ProcessRequest(context.Background(), req, "")

	var errResp *types.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusBadRequest, errResp.Status)
	assert.Equal(t, "invalid_request_error", errResp.Err.Type)
	assert.False(t, called)
}

func TestProcessRequestInvalidBackendToolArguments(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o",`+
			`"choices":[{"index":0,"message":{"role":"assistant","tool_calls":[`+
			`{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"[\"Paris\"]"}}]},`+
			`"finish_reason":"tool_calls"}]}`)
	})

	_, err := adapter.ProcessRequest(context.Background(), messagesRequest(false), "")

	var errResp *types.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusBadGateway, errResp.Status)
	assert.Equal(t, "api_error", errResp.Err.Type)
	assert.Contains(t, errResp.Err.Message, "invalid backend response")
}

func TestProcessStreamingRequest(t *testing.T) {
	adapter, registry := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range []string{
			`data: {"id":"c","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"},"finish_reason":null}]}`,
			`data: {"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`data: {"id":"c","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":1,"total_tokens":5}}`,
			`data: [DONE]`,
		} {
			_, _ = io.WriteString(w, line+"\n\n")
		}
	})

	events, err := adapter.ProcessStreamingRequest(context.Background(), messagesRequest(true), "req-2")
	require.NoError(t, err)

	collected, err := collectEvents(t, events)
	require.NoError(t, err)
	assertWellFormed(t, collected)

	assert.Equal(t, []types.EventType{
		types.EventMessageStart,
		types.EventContentBlockStart,
		types.EventContentBlockDelta,
		types.EventContentBlockStop,
		types.EventMessageDelta,
		types.EventMessageStop,
	}, eventTypes(collected))
	assert.Equal(t, "claude-3-5-haiku-latest", collected[0].Message.Model)
	assert.Equal(t, types.Usage{InputTokens: 4, OutputTokens: 1}, *collected[4].Usage)
	assert.Zero(t, registry.Len())
}

func TestProcessStreamingRequestOpenError(t *testing.T) {
	adapter, registry := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	})

	events, err := adapter.ProcessStreamingRequest(context.Background(), messagesRequest(true), "req-3")
	assert.Nil(t, events)

	var errResp *types.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, "rate_limit_error", errResp.Err.Type)
	assert.Zero(t, registry.Len())
}

func TestProcessStreamingRequestCancelled(t *testing.T) {
	release := make(chan struct{})
	adapter, registry := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"id":"c","choices":[{"index":0,"delta":{"content":"Hi"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	events, err := adapter.ProcessStreamingRequest(context.Background(), messagesRequest(true), "req-4")
	require.NoError(t, err)

	var (
		got     []types.EventType
		lastErr error
	)
	for event, err := range events {
		if err != nil {
			lastErr = err
			break
		}
		got = append(got, event.Type)
		if event.Type == types.EventContentBlockDelta {
			assert.True(t, registry.Cancel("req-4"))
		}
	}

	assert.NotContains(t, got, types.EventMessageStop)
	require.Error(t, lastErr)
	assert.True(t, IsCancelled(lastErr))
	assert.Zero(t, registry.Len())
}

func TestResolveModel(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.Equal(t, "gpt-4o-mini", adapter.ResolveModel("claude-3-5-haiku-latest"))
	assert.Equal(t, "unknown", adapter.ResolveModel("unknown"))
}

func TestNewCreateMessageAdapterRequiresBackend(t *testing.T) {
	_, err := NewCreateMessageAdapter(nil, nil)
	assert.Error(t, err)
}
