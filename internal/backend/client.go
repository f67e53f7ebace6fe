package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"

	"github.com/florianilch/claudine-gateway/internal/cancellation"
)

// Canonical payload shapes shared by all wire variants.
type (
	Request  = openai.ChatCompletionRequest
	Response = openai.ChatCompletionResponse
	Chunk    = openai.ChatCompletionStreamResponse
)

// Variant selects the backend wire protocol.
type Variant string

const (
	VariantOpenAI Variant = "openai"
	VariantAzure  Variant = "azure"
	VariantCustom Variant = "custom"
)

// ParseVariant validates a configured variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantOpenAI, VariantAzure, VariantCustom:
		return v, nil
	case "":
		return VariantOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported backend variant %q (expected: openai, azure, custom)", s)
	}
}

// Config describes how to reach the backend.
type Config struct {
	Variant Variant
	BaseURL string
	APIKey  string

	// Timeout bounds non-streaming calls and the time to response headers for streams.
	// Zero disables the ceiling.
	Timeout time.Duration

	// Headers are added to every outbound request.
	Headers map[string]string

	Azure  AzureConfig
	Custom CustomConfig
}

// AzureConfig holds Azure-specific settings.
type AzureConfig struct {
	APIVersion string
	// Deployment overrides the resolved model name in the request path when set.
	Deployment string
}

// CustomConfig holds settings of the custom HTTP-only provider.
type CustomConfig struct {
	Framing Framing
	// Path overrides the default chat completions path.
	Path string
}

// Client executes chat completion calls against one backend.
type Client struct {
	wire     wire
	variant  Variant
	registry *cancellation.Registry
	timeout  time.Duration
}

// wire is implemented by each backend variant.
type wire interface {
	complete(ctx context.Context, req Request) (*Response, error)
	openStream(ctx context.Context, req Request) (chunkReader, error)
}

// chunkReader yields canonical chunks until io.EOF.
type chunkReader interface {
	Recv() (Chunk, error)
	Close() error
}

type options struct {
	transport   http.RoundTripper
	tokenSource oauth2.TokenSource
}

// Option configures a Client.
type Option func(*options)

// WithTransport replaces the base HTTP transport. The response header timeout is then
// up to the caller.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithTokenSource authenticates Azure calls with bearer tokens instead of an api-key.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) {
		o.tokenSource = ts
	}
}

// New creates a Client for the configured variant.
func New(cfg Config, registry *cancellation.Registry, opts ...Option) (*Client, error) {
	if registry == nil {
		return nil, errors.New("cancellation registry cannot be nil")
	}

	variant, err := ParseVariant(string(cfg.Variant))
	if err != nil {
		return nil, err
	}
	cfg.Variant = variant

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.tokenSource != nil && variant != VariantAzure {
		return nil, fmt.Errorf("token source authentication is only supported by the azure variant")
	}

	base := o.transport
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = cfg.Timeout
		base = t
	}

	var transport http.RoundTripper = &headerTransport{base: base, headers: cfg.Headers}
	if o.tokenSource != nil {
		transport = &oauth2.Transport{Source: o.tokenSource, Base: transport}
	}

	// Client.Timeout stays zero so long-running streams are not cut off.
	httpClient := &http.Client{Transport: transport}

	var w wire
	switch variant {
	case VariantCustom:
		w, err = newCustomWire(cfg, httpClient)
	default:
		w, err = newOpenAIWire(cfg, httpClient, o.tokenSource != nil)
	}
	if err != nil {
		return nil, err
	}

	return &Client{
		wire:     w,
		variant:  variant,
		registry: registry,
		timeout:  cfg.Timeout,
	}, nil
}

// Variant returns the active wire variant.
func (c *Client) Variant() Variant {
	return c.variant
}

// Complete performs a non-streaming call.
func (c *Client) Complete(ctx context.Context, req Request, requestID string) (*Response, error) {
	req.Stream = false
	req.StreamOptions = nil

	entry, err := c.register(requestID)
	if err != nil {
		return nil, err
	}
	defer release(entry)

	var (
		callCtx context.Context
		abort   context.CancelFunc
	)
	if c.timeout > 0 {
		callCtx, abort = context.WithTimeout(ctx, c.timeout)
	} else {
		callCtx, abort = context.WithCancel(ctx)
	}
	defer abort()

	resp, err := race(callCtx, abort, signal(entry), func(ctx context.Context) (*Response, error) {
		return c.wire.complete(ctx, req)
	})
	if err != nil {
		return nil, classify(err, c.variant)
	}

	return resp, nil
}

// Stream opens a streaming call. The returned Stream must be consumed via Chunks or
// closed; it is also closed automatically when ctx ends.
func (c *Client) Stream(ctx context.Context, req Request, requestID string) (*Stream, error) {
	req.Stream = true

	entry, err := c.register(requestID)
	if err != nil {
		return nil, err
	}

	streamCtx, cancelStream := context.WithCancel(ctx)

	reader, err := race(streamCtx, cancelStream, signal(entry), func(ctx context.Context) (chunkReader, error) {
		return c.wire.openStream(ctx, req)
	})
	if err != nil {
		if reader != nil {
			_ = reader.Close()
		}
		cancelStream()
		release(entry)
		return nil, classify(err, c.variant)
	}

	return newStream(streamCtx, cancelStream, reader, entry, c.variant), nil
}

// register creates the cancellation entry of a call. Calls without request id are not
// tracked.
func (c *Client) register(requestID string) (*cancellation.Entry, error) {
	if requestID == "" {
		return nil, nil
	}

	entry, err := c.registry.Register(requestID)
	if err != nil {
		return nil, &Error{
			Kind:    KindUnexpected,
			Status:  http.StatusInternalServerError,
			Message: err.Error(),
			Err:     err,
		}
	}
	return entry, nil
}

func signal(entry *cancellation.Entry) <-chan struct{} {
	if entry == nil {
		return nil
	}
	return entry.Done()
}

func release(entry *cancellation.Entry) {
	if entry != nil {
		entry.Release()
	}
}
