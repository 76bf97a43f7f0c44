package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequests        = "codereport.requests.total"
	metricRequestDuration = "codereport.request.duration.seconds"
	metricRequestsActive  = "codereport.requests.active"

	attrOp     = "op"
	attrStatus = "status"

	// StatusOK marks a successful request or run.
	StatusOK = "ok"
	// StatusError marks a failed request or run.
	StatusError = "error"
)

// durationBuckets covers 10ms to 10min. Single linters finish in well under
// a second; Java runs with SpotBugs take minutes.
var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// RequestMetrics counts HTTP routes and MCP tool calls by operation name.
// Failures are the requests recorded with [StatusError].
type RequestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

// NewRequestMetrics registers the request instruments on mt.
func NewRequestMetrics(mt metric.Meter) (*RequestMetrics, error) {
	requests, reqErr := mt.Int64Counter(metricRequests,
		metric.WithDescription("Requests by operation and outcome"),
		metric.WithUnit("{request}"))
	duration, durErr := mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	active, actErr := mt.Int64UpDownCounter(metricRequestsActive,
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))

	err := errors.Join(reqErr, durErr, actErr)
	if err != nil {
		return nil, fmt.Errorf("create request metrics: %w", err)
	}

	return &RequestMetrics{requests: requests, duration: duration, active: active}, nil
}

// Start marks op active and returns the function that ends it with the
// given status. A nil receiver records nothing.
func (rm *RequestMetrics) Start(ctx context.Context, op string) func(status string) {
	if rm == nil {
		return func(string) {}
	}

	start := time.Now()
	opAttr := attribute.String(attrOp, op)

	rm.active.Add(ctx, 1, metric.WithAttributes(opAttr))

	return func(status string) {
		rm.active.Add(ctx, -1, metric.WithAttributes(opAttr))

		attrs := metric.WithAttributes(opAttr, attribute.String(attrStatus, status))
		rm.requests.Add(ctx, 1, attrs)
		rm.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
