package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/openaichat"
	"github.com/florianilch/claudine-gateway/internal/observability/middleware"
)

// Canceller aborts in-flight backend calls by request ID.
type Canceller interface {
	Cancel(requestID string) bool
}

// CreateMessageHandler handles Claude Messages requests.
type CreateMessageHandler struct {
	Adapter   claudeadapter.CreateMessageAdapter
	Canceller Canceller
	Validate  *validator.Validate
}

// Compile-time check to ensure CreateMessageHandler implements http.Handler
var _ http.Handler = (*CreateMessageHandler)(nil)

// ServeHTTP implements http.Handler interface for streaming or non-streaming requests.
func (h *CreateMessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req claudeadapter.CreateMessageRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.Validate.StructCtx(ctx, req); err != nil {
		slog.WarnContext(ctx, "invalid request", "error", err)
		writeJSONClaudeError(ctx, w, newClaudeError("invalid_request_error", validationMessage(err)))
		return
	}

	// The registry key is generated per call. The X-Request-ID header is client-controlled
	// and only correlates logs; it is not unique across overlapping requests.
	callID := uuid.New().String()

	// A disconnecting client cancels the backend call. The request context also ends
	// when the handler returns; by then the registry entry is already released.
	if h.Canceller != nil {
		stop := context.AfterFunc(ctx, func() {
			if h.Canceller.Cancel(callID) {
				slog.DebugContext(context.WithoutCancel(ctx), "client disconnected, cancelled backend call",
					slog.String("call_id", callID),
				)
			}
		})
		defer stop()
	}

	middleware.SetLogAttrs(ctx,
		slog.String("call_id", callID),
		slog.String("model", req.Model),
		slog.Bool("stream", req.Stream),
	)

	if req.Stream {
		h.streamResponse(ctx, w, req, callID)
	} else {
		h.writeResponse(ctx, w, req, callID)
	}
}

// writeResponse handles non-streaming message requests.
func (h *CreateMessageHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req claudeadapter.CreateMessageRequest,
	requestID string,
) {
	if ctx.Err() != nil {
		return
	}
	response, err := h.Adapter.ProcessRequest(ctx, req, requestID)
	if err != nil {
		if openaichat.IsCancelled(err) || ctx.Err() != nil {
			slog.DebugContext(ctx, "request cancelled by client")
			return
		}
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeJSONClaudeError(ctx, w, asClaudeError(err))
		return
	}

	writeJSON(ctx, w, response, http.StatusOK)
}

// streamResponse streams message events using SSE.
func (h *CreateMessageHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req claudeadapter.CreateMessageRequest,
	requestID string,
) {
	if ctx.Err() != nil {
		return
	}
	stream, err := h.Adapter.ProcessStreamingRequest(ctx, req, requestID)
	if err != nil {
		if openaichat.IsCancelled(err) || ctx.Err() != nil {
			slog.DebugContext(ctx, "request cancelled by client")
			return
		}
		slog.ErrorContext(ctx, "streaming request failed", "error", err)
		writeJSONClaudeError(ctx, w, asClaudeError(err))
		return
	}

	sse := NewSSEWriter(w)

	for event, err := range stream {
		if err != nil {
			if openaichat.IsCancelled(err) || ctx.Err() != nil {
				// The client is gone; a truncated stream without message_stop is all it
				// could observe anyway.
				slog.DebugContext(ctx, "client disconnected during stream")
				return
			}

			slog.ErrorContext(ctx, "stream error", "error", err)
			errResp := asClaudeError(err)

			if !sse.Started() {
				writeJSONClaudeError(ctx, w, errResp)
				return
			}

			// Best effort: Claude SDKs surface "event: error" frames as stream errors.
			if writeErr := sse.WriteEvent("error", errResp); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error event", "error", writeErr)
			}
			return
		}

		if err := sse.WriteEvent(string(event.Type), event); err != nil {
			slog.ErrorContext(ctx, "failed to write event", "error", err)
			return
		}
	}

	if err := sse.WriteDone(); err != nil {
		slog.ErrorContext(ctx, "failed to write stream termination marker", "error", err)
	}
}

// decodeRequest decodes a JSON body, answering with a Claude error on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONClaudeError(ctx, w, newClaudeError("request_too_large", http.StatusText(http.StatusRequestEntityTooLarge)))
			return false
		}
		slog.WarnContext(ctx, "failed to decode request", "error", err)
		writeJSONClaudeError(ctx, w, newClaudeError("invalid_request_error", "invalid request body: "+err.Error()))
		return false
	}
	return true
}

// asClaudeError wraps unexpected errors for client visibility.
func asClaudeError(err error) *claudeadapter.ErrorResponse {
	var errResp *claudeadapter.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp
	}
	return newClaudeError("api_error", err.Error())
}
