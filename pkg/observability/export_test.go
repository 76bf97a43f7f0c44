package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// BuildResource exposes buildResource for testing.
func BuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// SampledRootSpan starts a root span with the sampler resolved from cfg and
// reports whether it was recorded.
func SampledRootSpan(cfg Config) (sampled bool) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(selectSampler(cfg)),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "root")
	span.End()

	// Check spans before Shutdown, which clears the exporter.
	spans := exporter.GetSpans()

	shutdownErr := tp.Shutdown(context.Background())
	if shutdownErr != nil {
		return false
	}

	return len(spans) > 0
}
