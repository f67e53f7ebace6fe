// Package tokensource provides Microsoft Entra ID bearer tokens for the Azure OpenAI
// backend variant.
//
// Tokens are obtained with the OAuth2 client credentials grant and cached until shortly
// before they expire:
//
//	ts := tokensource.NewEntraTokenSource(ctx, tokensource.EntraConfig{
//	  TenantID:     tenantID,
//	  ClientID:     clientID,
//	  ClientSecret: clientSecret,
//	})
//	// ts implements oauth2.TokenSource and plugs into backend.WithTokenSource
//
// # Custom Base Transport
//
// Configure a custom base transport for token requests (e.g., for proxies or custom
// timeouts):
//
//	ts := tokensource.NewEntraTokenSource(ctx, cfg, tokensource.WithTransport(customTransport))
package tokensource
