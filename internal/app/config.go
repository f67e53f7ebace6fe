package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/openaichat"
)

// EnvPrefix marks environment variables read into the configuration.
// Nested keys are separated by a double underscore: CLAUDINE_BACKEND__BASE_URL.
const EnvPrefix = "CLAUDINE_"

// Config is the complete gateway configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Backend    BackendConfig    `koanf:"backend"`
	Models     ModelsConfig     `koanf:"models"`
	Conversion ConversionConfig `koanf:"conversion"`
	Auth       AuthConfig       `koanf:"auth"`
}

// ServerConfig configures the client-facing listener.
type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required,hostname_port"`
	// ClientAPIKey enables client authentication when set.
	ClientAPIKey    string `koanf:"client_api_key"`
	MaxRequestBytes int64  `koanf:"max_request_bytes" validate:"gt=0"`
	ModelListing    bool   `koanf:"model_listing"`
}

// BackendConfig configures the OpenAI-compatible backend.
type BackendConfig struct {
	Variant string            `koanf:"variant" validate:"oneof=openai azure custom"`
	BaseURL string            `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration     `koanf:"timeout" validate:"gte=0"`
	Headers map[string]string `koanf:"headers"`
	Azure   AzureConfig       `koanf:"azure"`
	Custom  CustomConfig      `koanf:"custom"`
}

// AzureConfig configures the Azure variant. Setting TenantID switches authentication from
// api-key to Entra ID client credentials.
type AzureConfig struct {
	APIVersion   string `koanf:"api_version"`
	Deployment   string `koanf:"deployment"`
	TenantID     string `koanf:"tenant_id"`
	ClientID     string `koanf:"client_id" validate:"required_with=TenantID"`
	ClientSecret string `koanf:"client_secret" validate:"required_with=TenantID"`
}

// CustomConfig configures the custom HTTP-only variant.
type CustomConfig struct {
	Framing string `koanf:"framing" validate:"oneof=V1 V2 v1 v2"`
	Path    string `koanf:"path"`
}

// ModelsConfig names the backend model of each tier.
type ModelsConfig struct {
	Big    string `koanf:"big" validate:"required"`
	Middle string `koanf:"middle"`
	Small  string `koanf:"small" validate:"required"`
}

// ConversionConfig tunes request conversion.
type ConversionConfig struct {
	MinTokens      int    `koanf:"min_tokens" validate:"gte=0"`
	MaxTokens      int    `koanf:"max_tokens" validate:"gte=0"`
	ToolChoice     string `koanf:"tool_choice" validate:"oneof=auto none"`
	DefaultTool    string `koanf:"default_tool"`
	ThinkingEffort bool   `koanf:"thinking_effort"`
}

// defaults holds the lowest-precedence configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"server.addr":                "127.0.0.1:8082",
		"server.max_request_bytes":   int64(32 << 20),
		"server.model_listing":       false,
		"backend.variant":            string(backend.VariantOpenAI),
		"backend.base_url":           "https://api.openai.com/v1",
		"backend.timeout":            "90s",
		"backend.azure.api_version":  "2024-10-21",
		"backend.custom.framing":     string(backend.FramingV1),
		"backend.custom.path":        backend.DefaultCustomPath,
		"models.big":                 "gpt-4o",
		"models.small":               "gpt-4o-mini",
		"conversion.min_tokens":      100,
		"conversion.max_tokens":      4096,
		"conversion.tool_choice":     string(openaichat.ToolChoiceModeAuto),
		"conversion.thinking_effort": true,
		"auth.storage":               string(KeyStorageTypeEnv),
		"auth.keyring_service":       "claudine-gateway",
		"auth.keyring_user":          "backend-api-key",
	}
}

// LoadConfig layers defaults, the optional TOML file at path, environment variables and
// overrides, in increasing precedence. Override keys use dotted paths (server.addr).
func LoadConfig(path string, environ func() []string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if environ != nil {
		envProvider := env.Provider(".", env.Opt{
			Prefix:        EnvPrefix,
			TransformFunc: envKey,
			EnvironFunc:   environ,
		})
		if err := k.Load(envProvider, nil); err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps CLAUDINE_BACKEND__BASE_URL to backend.base_url.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", "."), value
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Backend.Variant != string(backend.VariantAzure) && c.Backend.Azure.TenantID != "" {
		return errors.New("invalid config: backend.azure.tenant_id requires backend.variant azure")
	}

	if c.Conversion.MaxTokens > 0 && c.Conversion.MinTokens > c.Conversion.MaxTokens {
		return errors.New("invalid config: conversion.min_tokens exceeds conversion.max_tokens")
	}

	return nil
}

// BackendClientConfig converts the backend section for backend.New.
func (c *Config) BackendClientConfig(apiKey string) (backend.Config, error) {
	variant, err := backend.ParseVariant(c.Backend.Variant)
	if err != nil {
		return backend.Config{}, err
	}

	framing, err := backend.ParseFraming(c.Backend.Custom.Framing)
	if err != nil {
		return backend.Config{}, err
	}

	return backend.Config{
		Variant: variant,
		BaseURL: c.Backend.BaseURL,
		APIKey:  apiKey,
		Timeout: c.Backend.Timeout,
		Headers: c.Backend.Headers,
		Azure: backend.AzureConfig{
			APIVersion: c.Backend.Azure.APIVersion,
			Deployment: c.Backend.Azure.Deployment,
		},
		Custom: backend.CustomConfig{
			Framing: framing,
			Path:    c.Backend.Custom.Path,
		},
	}, nil
}

// UsesEntraID reports whether Azure calls authenticate with client credentials.
func (c *Config) UsesEntraID() bool {
	return c.Backend.Variant == string(backend.VariantAzure) && c.Backend.Azure.TenantID != ""
}
