package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID    = "trace_id"
	attrSpanID     = "span_id"
	attrService    = "service"
	attrEnv        = "env"
	attrMode       = "mode"
	attrAnalysisID = "analysis_id"
)

type analysisIDKey struct{}

// WithAnalysisID returns a context whose log records carry the analysis ID.
func WithAnalysisID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, analysisIDKey{}, id)
}

// AnalysisID returns the analysis ID stored by [WithAnalysisID], if any.
func AnalysisID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(analysisIDKey{}).(string)

	return id, ok && id != ""
}

// TracingHandler is an [slog.Handler] that injects OpenTelemetry trace context
// (trace_id, span_id), the current analysis ID, and service metadata into
// every log record.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps an [slog.Handler]. Service attributes are attached
// to the inner handler up front so they stay at the top level when groups
// are used.
func NewTracingHandler(inner slog.Handler, service, env string, appMode AppMode) *TracingHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &TracingHandler{
		inner: inner.WithAttrs(attrs),
	}
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle adds context attributes, then delegates.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if id, ok := AnalysisID(ctx); ok {
		record.AddAttrs(slog.String(attrAnalysisID, id))
	}

	err := th.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// WithAttrs returns a new TracingHandler with additional attributes on the inner handler.
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{
		inner: th.inner.WithAttrs(attrs),
	}
}

// WithGroup returns a new TracingHandler with a group prefix on the inner handler.
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{
		inner: th.inner.WithGroup(name),
	}
}
