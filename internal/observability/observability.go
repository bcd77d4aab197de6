// Package observability provides optional OpenTelemetry tracing.
//
// Tracing is off by default. When enabled, spans are exported over OTLP/HTTP
// to a local collector (an OTel Collector or any agent speaking OTLP on
// localhost:4318). The exporter is created at startup; if the collector is
// unreachable the application still runs, it just traces into the void until
// the batcher drops the spans.
//
// Configuration (~/.lore/config.yaml):
//
//	otel:
//	  enabled: true
//	  endpoint: "localhost:4318"
//	  service_name: "lore"
//	  environment: "dev"
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultEndpoint is the conventional local OTLP/HTTP endpoint.
const DefaultEndpoint = "localhost:4318"

// Config for the tracing setup.
type Config struct {
	// Enabled turns tracing on. When false, Setup is a no-op.
	Enabled bool
	// Endpoint is the OTLP/HTTP endpoint (default: localhost:4318).
	Endpoint string
	// ServiceName is the service name attached to every span.
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
}

// Setup installs the global tracer provider and returns a shutdown function
// that flushes pending spans. When tracing is disabled, or the exporter
// cannot be created, the returned shutdown is a no-op and the global
// provider stays at its default, so instrumented code keeps working.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noop, nil
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.DeploymentEnvironment(cfg.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		logger.Warn("failed to build trace resource, tracing disabled", "error", err)
		return noop, nil
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)
	return provider.Shutdown, nil
}
