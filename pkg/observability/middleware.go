package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// httpStatusServerError is the threshold for HTTP server errors.
const httpStatusServerError = 500

// statusWriter wraps [http.ResponseWriter] to capture the status code and
// the number of body bytes written.
type statusWriter struct {
	http.ResponseWriter

	statusCode int
	written    bool
	bytes      int64
}

// WriteHeader captures the status code before delegating to the wrapped writer.
func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}

	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(buf []byte) (int, error) {
	if !sw.written {
		sw.statusCode = http.StatusOK
		sw.written = true
	}

	n, err := sw.ResponseWriter.Write(buf)
	sw.bytes += int64(n)

	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}

	return n, nil
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// HTTPMiddleware returns an [http.Handler] that creates a span per request
// and, when logger is non-nil, writes one access log line per request.
// Span names use "METHOD /path".
func HTTPMiddleware(tracer trace.Tracer, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		start := time.Now()
		spanName := hr.Method + " " + hr.URL.Path

		// Extract W3C traceparent/tracestate/baggage from incoming headers.
		parentCtx := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

		ctx, span := tracer.Start(parentCtx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(hr.Method),
				attribute.String("http.target", hr.URL.Path),
			),
		)
		defer span.End()

		sw := &statusWriter{ResponseWriter: rw, statusCode: http.StatusOK}
		next.ServeHTTP(sw, hr.WithContext(ctx))

		span.SetAttributes(semconv.HTTPResponseStatusCode(sw.statusCode))

		if sw.statusCode >= httpStatusServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
		}

		if logger != nil {
			logger.InfoContext(ctx, "http request",
				"method", hr.Method,
				"path", hr.URL.Path,
				"status", sw.statusCode,
				"bytes", sw.bytes,
				"duration", time.Since(start).Round(time.Millisecond),
			)
		}
	})
}
