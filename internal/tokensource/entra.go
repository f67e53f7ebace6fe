package tokensource

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultAuthorityHost is the public Entra ID cloud.
	DefaultAuthorityHost = "https://login.microsoftonline.com"
	// CognitiveServicesScope grants access to Azure OpenAI deployments.
	CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"
)

// EntraConfig identifies an Entra ID application registration.
type EntraConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// AuthorityHost overrides DefaultAuthorityHost, e.g. for sovereign clouds.
	AuthorityHost string
}

// TokenURL returns the v2.0 token endpoint of the tenant.
func (c EntraConfig) TokenURL() string {
	host := c.AuthorityHost
	if host == "" {
		host = DefaultAuthorityHost
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(host, "/"), c.TenantID)
}

type options struct {
	transport http.RoundTripper
}

// Option configures the token source.
type Option func(*options)

// WithTransport sets the transport used for token requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// NewEntraTokenSource returns a caching token source for the client credentials grant.
// ctx scopes the HTTP client used for token requests, not individual fetches.
func NewEntraTokenSource(ctx context.Context, cfg EntraConfig, opts ...Option) oauth2.TokenSource {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if o.transport != nil {
		client.Transport = o.transport
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL(),
		Scopes:       []string{CognitiveServicesScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	return cc.TokenSource(ctx)
}
