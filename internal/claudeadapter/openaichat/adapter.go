package openaichat

import (
	"context"
	"errors"
	"iter"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// Backend executes Chat Completions calls. *backend.Client implements it.
type Backend interface {
	Complete(ctx context.Context, req backend.Request, requestID string) (*backend.Response, error)
	Stream(ctx context.Context, req backend.Request, requestID string) (*backend.Stream, error)
	Variant() backend.Variant
}

// CreateMessageAdapter transforms Claude Messages requests to Chat Completions format,
// calls the backend, and transforms responses back.
type CreateMessageAdapter struct {
	backend  Backend
	resolver ModelResolver
	checker  CancellationChecker
	cfg      requestConfig
}

// Compile-time check that CreateMessageAdapter implements claudeadapter.CreateMessageAdapter
var _ claudeadapter.CreateMessageAdapter = (*CreateMessageAdapter)(nil)

// Option configures a CreateMessageAdapter.
type Option func(*CreateMessageAdapter)

// WithToolChoicePolicy sets how requests without a client tool_choice are treated.
func WithToolChoicePolicy(policy ToolChoicePolicy) Option {
	return func(a *CreateMessageAdapter) {
		a.cfg.toolChoice = policy
	}
}

// WithTokenLimits clamps max_tokens into [lower, upper]. Zero disables a bound.
func WithTokenLimits(lower, upper int) Option {
	return func(a *CreateMessageAdapter) {
		a.cfg.minTokens = lower
		a.cfg.maxTokens = upper
	}
}

// WithThinkingEffort translates thinking budgets into reasoning_effort.
func WithThinkingEffort(enabled bool) Option {
	return func(a *CreateMessageAdapter) {
		a.cfg.mapThinking = enabled
	}
}

// WithCancellationChecker lets streams stop as soon as their request is cancelled.
func WithCancellationChecker(checker CancellationChecker) Option {
	return func(a *CreateMessageAdapter) {
		a.checker = checker
	}
}

// NewCreateMessageAdapter creates an adapter serving Claude Messages from client.
func NewCreateMessageAdapter(client Backend, resolver ModelResolver, opts ...Option) (*CreateMessageAdapter, error) {
	if client == nil {
		return nil, errors.New("backend cannot be nil")
	}

	adapter := &CreateMessageAdapter{
		backend:  client,
		resolver: resolver,
		cfg: requestConfig{
			variant:    client.Variant(),
			toolChoice: ToolChoicePolicy{Mode: ToolChoiceModeAuto},
		},
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter, nil
}

// ProcessRequest performs a non-streaming Messages call.
func (a *CreateMessageAdapter) ProcessRequest(
	ctx context.Context,
	clientReq types.MessagesRequest,
	requestID string,
) (*types.Message, error) {
	clientReq.Stream = false

	req, err := fromMessagesRequest(clientReq, a.resolver, a.cfg)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	resp, err := a.backend.Complete(ctx, req, requestID)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	msg, err := toMessage(ctx, resp, clientReq.Model)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	return msg, nil
}

// ProcessStreamingRequest opens a streaming Messages call. Errors before the backend
// stream is open are returned directly; later errors are yielded as *types.ErrorResponse.
func (a *CreateMessageAdapter) ProcessStreamingRequest(
	ctx context.Context,
	clientReq types.MessagesRequest,
	requestID string,
) (iter.Seq2[*types.Event, error], error) {
	clientReq.Stream = true

	req, err := fromMessagesRequest(clientReq, a.resolver, a.cfg)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	stream, err := a.backend.Stream(ctx, req, requestID)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	events := toEventStream(ctx, stream.Chunks(), streamConfig{
		messageID: newMessageID(),
		model:     clientReq.Model,
		requestID: requestID,
		checker:   a.checker,
		signal:    stream,
	})

	return func(yield func(*types.Event, error) bool) {
		// Release the backend stream even if the caller never iterates to the end.
		defer func() { _ = stream.Close() }()

		for event, err := range events {
			if err != nil {
				yield(nil, toErrorResponse(err))
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}, nil
}

// ResolveModel returns the backend model a client-facing name maps to.
func (a *CreateMessageAdapter) ResolveModel(model string) string {
	if a.resolver == nil {
		return model
	}
	return a.resolver.Resolve(model)
}

// Probe sends a minimal request to verify backend connectivity and credentials.
func (a *CreateMessageAdapter) Probe(ctx context.Context, model string) (*types.Message, error) {
	return a.ProcessRequest(ctx, types.MessagesRequest{
		Model:     model,
		MaxTokens: 5,
		Messages: []types.MessageParam{{
			Role:    types.RoleUser,
			Content: types.ContentBlocks{types.NewTextBlock("Hello")},
		}},
	}, "")
}
