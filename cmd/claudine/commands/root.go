package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/claudine-gateway/internal/app"
	"github.com/florianilch/claudine-gateway/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "claudine",
		Usage:   "Claude Messages API gateway for OpenAI-compatible backends",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("CLAUDINE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded into the environment before reading config",
				Value: ".env",
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			proxyStartCommand(version, commit),
			authCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// loadEnvFile loads the dotenv file if present. Variables already set win.
func loadEnvFile(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("env-file")
	if path == "" {
		return ctx, nil
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !cmd.IsSet("env-file") {
		return ctx, nil
	}
	if err != nil {
		return ctx, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return ctx, nil
}

func proxyStartCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Starts the gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (none|stdout|otlphttp|otlpgrpc)",
				Value: string(observability.ExporterNone),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides server.addr",
			},
			&cli.StringFlag{
				Name:  "backend-url",
				Usage: "backend base URL, overrides backend.base_url",
			},
			&cli.BoolFlag{
				Name:  "model-listing",
				Usage: "serve /v1/models from the built-in catalog",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return proxyStartAction(ctx, cmd, app.BuildInfo{Version: version, Commit: commit})
		},
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command, build app.BuildInfo) error {
	var level slog.Level
	err := level.UnmarshalText([]byte(cmd.String("log-level")))
	if err != nil {
		return err
	}

	// Set up observability before creating app
	shutdownObservability, err := observability.Instrument(ctx, observability.Options{
		Level:    level,
		Format:   cmd.String("log-format"),
		Exporter: observability.Exporter(cmd.String("log-exporter")),
	})
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		// Export must flush even though ctx is already cancelled on shutdown.
		if err := shutdownObservability(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}()

	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.New(ctx, cfg, build)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting",
		"version", build.Version,
		"backend", cfg.Backend.Variant,
		"base_url", cfg.Backend.BaseURL,
	)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

// loadConfig reads the layered configuration. Flags set on cmd take precedence.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := map[string]any{}
	for flag, key := range map[string]string{
		"addr":        "server.addr",
		"backend-url": "backend.base_url",
	} {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	if cmd.IsSet("model-listing") {
		overrides["server.model_listing"] = cmd.Bool("model-listing")
	}

	return app.LoadConfig(path, environ, overrides)
}
