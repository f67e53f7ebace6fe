// Package proxy exposes the Claude Messages API over HTTP and forwards requests to the
// configured adapter.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter"
	"github.com/florianilch/claudine-gateway/internal/observability/middleware"
)

const (
	// defaultMaxRequestBytes bounds request bodies; image-heavy conversations are large.
	defaultMaxRequestBytes = 32 << 20
	// defaultProbeModel is a small-tier model, keeping connection tests cheap.
	defaultProbeModel = "claude-3-5-haiku-latest"
)

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// MessagesAdapter serves Messages requests and supports connection probes.
type MessagesAdapter interface {
	claudeadapter.CreateMessageAdapter
	Prober
}

// Proxy is the HTTP server of the gateway.
type Proxy struct {
	handler http.Handler
	server  *http.Server
}

type options struct {
	clientAPIKey    string
	maxRequestBytes int64
	catalog         ModelCatalog
	probeModel      string
	info            ServiceInfo
	logger          *slog.Logger
}

// Option configures a Proxy.
type Option func(*options)

// WithClientAPIKey requires clients to authenticate with key.
func WithClientAPIKey(key string) Option {
	return func(o *options) {
		o.clientAPIKey = key
	}
}

// WithMaxRequestBytes overrides the request body limit.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		o.maxRequestBytes = n
	}
}

// WithModelCatalog enables GET /v1/models backed by catalog.
func WithModelCatalog(catalog ModelCatalog) Option {
	return func(o *options) {
		o.catalog = catalog
	}
}

// WithProbeModel sets the model used by GET /test-connection.
func WithProbeModel(model string) Option {
	return func(o *options) {
		o.probeModel = model
	}
}

// WithServiceInfo sets the description served on GET /.
func WithServiceInfo(info ServiceInfo) Option {
	return func(o *options) {
		o.info = info
	}
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a Proxy serving adapter. canceller receives the request IDs of clients
// that disconnect mid-request.
func New(adapter MessagesAdapter, canceller Canceller, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if adapter == nil {
		return nil, errors.New("adapter cannot be nil")
	}
	if health == nil {
		return nil, errors.New("readiness checker cannot be nil")
	}

	o := options{
		maxRequestBytes: defaultMaxRequestBytes,
		probeModel:      defaultProbeModel,
		info:            ServiceInfo{Name: "claudine-gateway"},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.info.ClientAuth = o.clientAPIKey != ""
	o.info.ModelsEndpoint = o.catalog != nil

	validate := newValidator()

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONClaudeError(r.Context(), w, newClaudeError("not_found_error", "not found: "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, newClaudeError("invalid_request_error", "method not allowed: "+r.Method), http.StatusMethodNotAllowed)
	})

	// Probes and health checks stay reachable without client credentials.
	r.Get("/livez", livenessHandler())
	r.Get("/readyz", readinessHandler(health))
	r.Get("/health", healthHandler(health))
	r.Get("/", infoHandler(o.info))

	r.Group(func(r chi.Router) {
		r.Use(ClientAuth(o.clientAPIKey), RequestSizeLimit(o.maxRequestBytes))

		r.Method(http.MethodPost, "/v1/messages", &CreateMessageHandler{
			Adapter:   adapter,
			Canceller: canceller,
			Validate:  validate,
		})
		r.Post("/v1/messages/count_tokens", countTokensHandler(validate))
		r.Get("/test-connection", testConnectionHandler(adapter, o.probeModel))

		if o.catalog != nil {
			r.Get("/v1/models", modelsHandler(o.catalog))
			r.Get("/v1/models/{model_id}", modelHandler(o.catalog))
		}
	})

	handler := applyMiddlewares(r,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(o.logger, "/livez", "/readyz", "/health"),
		middleware.RequestIDPropagation,
		Recovery,
	)

	return &Proxy{
		handler: handler,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// No WriteTimeout: streamed responses last as long as the model generates.
			IdleTimeout: 120 * time.Second,
		},
	}, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. Runtime errors are delivered on
// the returned channel, which is closed when the server stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	p.server.BaseContext = func(net.Listener) context.Context {
		// Requests must outlive the start context so shutdown can drain them.
		return context.WithoutCancel(ctx)
	}

	slog.InfoContext(ctx, "proxy listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests until ctx ends.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}
