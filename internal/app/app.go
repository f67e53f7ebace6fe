package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/cancellation"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/openaichat"
	"github.com/florianilch/claudine-gateway/internal/modelmap"
	"github.com/florianilch/claudine-gateway/internal/proxy"
	"github.com/florianilch/claudine-gateway/internal/tokensource"
)

// shutdownTimeout bounds draining of in-flight requests.
const shutdownTimeout = 5 * time.Second

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string
	Commit  string
}

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	addr   string
	proxy  *proxy.Proxy
	health *Health
}

// New wires the backend client, model mapper, adapter and proxy from cfg.
func New(ctx context.Context, cfg *Config, build BuildInfo) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	store, err := cfg.Auth.NewKeyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create key store: %w", err)
	}

	apiKey, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read backend API key: %w", err)
	}

	var backendOpts []backend.Option
	switch {
	case cfg.UsesEntraID():
		backendOpts = append(backendOpts, backend.WithTokenSource(tokensource.NewEntraTokenSource(ctx, tokensource.EntraConfig{
			TenantID:     cfg.Backend.Azure.TenantID,
			ClientID:     cfg.Backend.Azure.ClientID,
			ClientSecret: cfg.Backend.Azure.ClientSecret,
		})))
	case apiKey == "" && cfg.Backend.Variant != string(backend.VariantCustom):
		return nil, errors.New("backend API key not configured: run 'claudine auth login' or set CLAUDINE_AUTH__API_KEY")
	case apiKey == "":
		slog.WarnContext(ctx, "no backend API key configured, custom backend calls are unauthenticated")
	}

	backendCfg, err := cfg.BackendClientConfig(apiKey)
	if err != nil {
		return nil, err
	}

	registry := cancellation.New()

	client, err := backend.New(backendCfg, registry, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	mapper, err := modelmap.New(modelmap.Config{
		BigModel:    cfg.Models.Big,
		MiddleModel: cfg.Models.Middle,
		SmallModel:  cfg.Models.Small,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model mapper: %w", err)
	}

	toolMode, err := openaichat.ParseToolChoiceMode(cfg.Conversion.ToolChoice)
	if err != nil {
		return nil, err
	}

	adapter, err := openaichat.NewCreateMessageAdapter(client, mapper,
		openaichat.WithToolChoicePolicy(openaichat.ToolChoicePolicy{
			Mode:        toolMode,
			DefaultTool: cfg.Conversion.DefaultTool,
		}),
		openaichat.WithTokenLimits(cfg.Conversion.MinTokens, cfg.Conversion.MaxTokens),
		openaichat.WithThinkingEffort(cfg.Conversion.ThinkingEffort),
		openaichat.WithCancellationChecker(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	health := NewHealth()

	proxyOpts := []proxy.Option{
		proxy.WithClientAPIKey(cfg.Server.ClientAPIKey),
		proxy.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
		proxy.WithServiceInfo(proxy.ServiceInfo{
			Name:    "claudine-gateway",
			Version: build.Version,
			Backend: string(client.Variant()),
			Models: map[string]string{
				string(modelmap.TierBig):    mapper.Backend(modelmap.TierBig),
				string(modelmap.TierMiddle): mapper.Backend(modelmap.TierMiddle),
				string(modelmap.TierSmall):  mapper.Backend(modelmap.TierSmall),
			},
		}),
	}
	if cfg.Server.ModelListing {
		proxyOpts = append(proxyOpts, proxy.WithModelCatalog(mapper))
	}

	proxyServer, err := proxy.New(adapter, registry, health, proxyOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		addr:   cfg.Server.Addr,
		proxy:  proxyServer,
		health: health,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server")
	proxyErrCh, err := a.proxy.Start(gCtx, a.addr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	a.health.SetReady(true)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	// Readiness drops before in-flight requests are drained.
	a.health.SetReady(false)
	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// Health returns the readiness state shared with the probe endpoints.
func (a *App) Health() *Health {
	return a.health
}
