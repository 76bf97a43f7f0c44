package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/codereport/pkg/observability"
)

func filteredSpanAttrs(t *testing.T, logger *slog.Logger, attrs ...attribute.KeyValue) map[string]any {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	filter := observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(filter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(attrs...)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	m := make(map[string]any, len(spans[0].Attributes))
	for _, a := range spans[0].Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}

func TestAttributeFilter_AllowsKnownPrefixes(t *testing.T) {
	t.Parallel()

	attrs := filteredSpanAttrs(t, nil,
		attribute.String("tool.name", "flake8"),
		attribute.Int("analysis.files", 4),
		attribute.String("error.type", "timeout"),
	)

	assert.Equal(t, "flake8", attrs["tool.name"])
	assert.Equal(t, int64(4), attrs["analysis.files"])
	assert.Equal(t, "timeout", attrs["error.type"])
}

func TestAttributeFilter_BlocksSecretsAndUnknown(t *testing.T) {
	t.Parallel()

	attrs := filteredSpanAttrs(t, nil,
		attribute.String("github.token", "ghp_secret"),
		attribute.String("request.body", "{}"),
		attribute.String("user.email", "a@example.com"),
		attribute.String("github.repo", "octo/hello"),
	)

	assert.NotContains(t, attrs, "github.token")
	assert.NotContains(t, attrs, "request.body")
	assert.NotContains(t, attrs, "user.email")
	assert.Equal(t, "octo/hello", attrs["github.repo"])
}

func TestAttributeFilter_WarnsWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	filteredSpanAttrs(t, logger, attribute.String("github.token", "ghp_secret"))

	assert.Contains(t, buf.String(), "github.token")
	assert.Contains(t, buf.String(), "blocked")
	assert.NotContains(t, buf.String(), "ghp_secret")
}
