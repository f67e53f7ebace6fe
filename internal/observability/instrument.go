package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies log records exported through OpenTelemetry.
const instrumentationName = "github.com/florianilch/claudine-gateway"

// Exporter selects where OpenTelemetry log records go in addition to the console.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlphttp"
	ExporterOTLPGRPC Exporter = "otlpgrpc"
)

// Options configures logging.
type Options struct {
	Level  slog.Level
	Format string
	// Exporter defaults to ExporterNone. OTLP endpoints follow the standard
	// OTEL_EXPORTER_OTLP_* environment variables.
	Exporter Exporter
}

// Instrument installs the default logger and the W3C trace context propagator.
// The returned function flushes and stops log export.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	console, err := newStdoutHandler(opts.Level, opts.Format)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	exporter, err := newExporter(ctx, opts.Exporter)
	if err != nil {
		return nil, err
	}

	if exporter == nil {
		slog.SetDefault(slog.New(newTraceContextHandler(console)))
		return func(context.Context) error { return nil }, nil
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	otelHandler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))

	// otelslog reads trace context from ctx itself; only the console needs enrichment.
	slog.SetDefault(slog.New(newFanoutHandler(newTraceContextHandler(console), otelHandler)))

	return provider.Shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

func newExporter(ctx context.Context, exporter Exporter) (sdklog.Exporter, error) {
	switch Exporter(strings.ToLower(string(exporter))) {
	case ExporterNone, "":
		return nil, nil
	case ExporterStdout:
		return stdoutlog.New()
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlphttp, otlpgrpc)", exporter)
	}
}

// severity maps slog levels onto the minimum exported OpenTelemetry severity.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
