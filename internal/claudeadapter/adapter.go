package claudeadapter

import (
	"context"
	"iter"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// Adapter defines the contract for serving Claude client requests from a provider API.
//
// Type parameters allow the interface to express transformation contracts for different
// request/response shapes while maintaining compile-time type safety.
//
// Type parameters:
//   - TRequest:  Client-specific request structure
//   - TResponse: Client-specific response structure
//   - TEvent:    Client-specific streaming event protocol
type Adapter[TRequest, TResponse, TEvent any] interface {
	// ProcessRequest transforms the client request, calls the provider API, and returns
	// the transformed response. requestID keys the call in the cancellation registry.
	ProcessRequest(ctx context.Context, clientReq TRequest, requestID string) (*TResponse, error)

	// ProcessStreamingRequest transforms the client request, opens the provider stream and
	// returns an iterator of transformed events. Errors that occur before the stream is
	// open are returned directly; later ones are yielded by the iterator.
	ProcessStreamingRequest(ctx context.Context, clientReq TRequest, requestID string) (iter.Seq2[*TEvent, error], error)
}

// Type aliases for Claude Messages operations.
// CreateMessageAdapter is the concrete adapter interface for this operation.
type (
	CreateMessageRequest  = types.MessagesRequest
	CreateMessageResponse = types.Message
	CreateMessageEvent    = types.Event

	CreateMessageAdapter = Adapter[
		CreateMessageRequest,
		CreateMessageResponse,
		CreateMessageEvent,
	]
)

// Type aliases for Claude error responses.
type (
	Error         = types.Error
	ErrorResponse = types.ErrorResponse
)
