// Package telemetry wires OpenTelemetry tracing for the daemon and the
// client facade.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Config contains tracing configuration
type Config struct {
	Enabled     bool
	ServiceName string

	// OTLP/gRPC collector address, host:port
	Endpoint string

	// Fraction of root spans kept; child spans follow their parent
	SamplingRatio float64

	// Export timeout
	Timeout time.Duration

	// Extra resource attributes
	Attributes map[string]string
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() Config {
	return Config{
		ServiceName:   "simsubd",
		Endpoint:      "localhost:4317",
		SamplingRatio: 0.1,
		Timeout:       5 * time.Second,
		Attributes:    map[string]string{},
	}
}

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider exporting to config.Endpoint.
// When tracing is disabled the global no-op provider stays in place.
func Setup(ctx context.Context, config Config) (ShutdownFunc, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(config.Timeout),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	provider, err := newProvider(ctx, config, sdktrace.WithBatcher(exporter))
	if err != nil {
		return nil, err
	}
	install(provider)

	logger := log.With().Str("component", "telemetry").Logger()
	logger.Info().
		Str("endpoint", config.Endpoint).
		Float64("sampling_ratio", config.SamplingRatio).
		Msg("Tracing enabled")

	return func(ctx context.Context) error {
		logger.Info().Msg("Flushing traces")
		return provider.Shutdown(ctx)
	}, nil
}

// newProvider builds a tracer provider for config around the given span
// processor options
func newProvider(ctx context.Context, config Config, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(config.ServiceName)}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithProcessPID(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts = append(opts,
		sdktrace.WithSampler(sampler(config.SamplingRatio)),
		sdktrace.WithResource(res),
	)
	return sdktrace.NewTracerProvider(opts...), nil
}

// sampler keeps a ratio of root spans; remote parents decide for their
// children
func sampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

func install(provider trace.TracerProvider) {
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Tracer returns a named tracer from the global provider
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
