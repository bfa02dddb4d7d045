// Package tracing wires up the optional OpenTelemetry tracer used by the
// supervisor loop and the compose orchestrator. Absent any configuration it
// is a no-op: otel's global TracerProvider already behaves that way, so
// callers can unconditionally call otel.Tracer(...).Start without checking
// whether tracing was configured.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
)

// EndpointEnv is the variable that opts a process into exporting spans.
const EndpointEnv = "LOCKBOX_OTEL_ENDPOINT"

// Init configures the global TracerProvider when LOCKBOX_OTEL_ENDPOINT is
// set, exporting over OTLP/gRPC with the exporter's own transport
// instrumented via otelgrpc. It returns a shutdown func that is always
// safe to defer, even when tracing was never configured.
func Init(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	endpoint := os.Getenv(EndpointEnv)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithStatsHandler(otelgrpc.NewClientHandler())),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: init otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
