package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

// Config selects where spans are exported. Exporter is "none", "console" or "otlp".
type Config struct {
	ServiceName string
	Version     string
	Exporter    string
	Endpoint    string
	Protocol    string
	Insecure    bool
}

// Setup installs the global tracer provider and the package tracer. The returned
// function flushes and stops the provider.
func Setup(ctx context.Context, cfg Config, logger ectologger.Logger) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "console":
		exporter = &exporters.ConsoleExporter{Logger: logger}
	case "otlp":
		otlpConfig := exporters.DefaultOTLPConfig()
		otlpConfig.Endpoint = cfg.Endpoint
		otlpConfig.Protocol = cfg.Protocol
		otlpConfig.Insecure = cfg.Insecure
		otlp, err := exporters.NewOTLPExporter(ctx, otlpConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = otlp
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s (use 'none', 'console' or 'otlp')", cfg.Exporter)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.Version),
		)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(provider.Tracer(cfg.ServiceName))

	logger.WithFields(map[string]any{
		"exporter": cfg.Exporter,
		"endpoint": cfg.Endpoint,
	}).Info("Tracing enabled")

	return provider.Shutdown, nil
}
