package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// openAIWire serves the standard and Azure variants through the go-openai client.
type openAIWire struct {
	client *openai.Client
}

func newOpenAIWire(cfg Config, httpClient *http.Client, bearer bool) (*openAIWire, error) {
	var clientConfig openai.ClientConfig

	switch cfg.Variant {
	case VariantAzure:
		if cfg.BaseURL == "" {
			return nil, errors.New("azure variant requires an endpoint base URL")
		}
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.BaseURL, "/"))
		if cfg.Azure.APIVersion != "" {
			clientConfig.APIVersion = cfg.Azure.APIVersion
		}
		if bearer {
			// The oauth2 transport replaces the empty bearer token per request.
			clientConfig.APIType = openai.APITypeAzureAD
		}

		deployment := cfg.Azure.Deployment
		clientConfig.AzureModelMapperFunc = func(model string) string {
			if deployment != "" {
				return deployment
			}
			return model
		}

	default:
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
	}

	clientConfig.HTTPClient = httpClient

	return &openAIWire{client: openai.NewClientWithConfig(clientConfig)}, nil
}

func (w *openAIWire) complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := w.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (w *openAIWire) openStream(ctx context.Context, req Request) (chunkReader, error) {
	stream, err := w.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
