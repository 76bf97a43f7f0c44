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
	metricAnalysesTotal = "codereport.analysis.runs.total"
	metricFilesTotal    = "codereport.analysis.files.total"
	metricToolRuns      = "codereport.tool.runs.total"
	metricToolDuration  = "codereport.tool.duration.seconds"

	attrSource   = "source"
	attrLanguage = "language"
	attrTool     = "tool"
)

// AnalysisMetrics holds OTel instruments for analysis pipeline metrics.
// All methods are no-ops on a nil receiver.
type AnalysisMetrics struct {
	analysesTotal metric.Int64Counter
	filesTotal    metric.Int64Counter
	toolRuns      metric.Int64Counter
	toolDuration  metric.Float64Histogram
}

// NewAnalysisMetrics creates analysis metric instruments from the given meter.
func NewAnalysisMetrics(mt metric.Meter) (*AnalysisMetrics, error) {
	analyses, analysesErr := mt.Int64Counter(metricAnalysesTotal,
		metric.WithDescription("Total analyses by intake source"),
		metric.WithUnit("{analysis}"))
	files, filesErr := mt.Int64Counter(metricFilesTotal,
		metric.WithDescription("Source files analyzed by language"),
		metric.WithUnit("{file}"))
	runs, runsErr := mt.Int64Counter(metricToolRuns,
		metric.WithDescription("External tool invocations"),
		metric.WithUnit("{run}"))
	duration, durErr := mt.Float64Histogram(metricToolDuration,
		metric.WithDescription("External tool run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))

	err := errors.Join(analysesErr, filesErr, runsErr, durErr)
	if err != nil {
		return nil, fmt.Errorf("create analysis metrics: %w", err)
	}

	return &AnalysisMetrics{
		analysesTotal: analyses,
		filesTotal:    files,
		toolRuns:      runs,
		toolDuration:  duration,
	}, nil
}

// RecordAnalysis counts one finished analysis.
func (am *AnalysisMetrics) RecordAnalysis(ctx context.Context, source, status string) {
	if am == nil {
		return
	}

	am.analysesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrSource, source),
		attribute.String(attrStatus, status),
	))
}

// RecordFiles counts analyzed files for a language.
func (am *AnalysisMetrics) RecordFiles(ctx context.Context, language string, files int) {
	if am == nil || files <= 0 {
		return
	}

	am.filesTotal.Add(ctx, int64(files), metric.WithAttributes(attribute.String(attrLanguage, language)))
}

// RecordToolRun records one external tool invocation.
func (am *AnalysisMetrics) RecordToolRun(ctx context.Context, tool, status string, duration time.Duration) {
	if am == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)

	am.toolRuns.Add(ctx, 1, attrs)
	am.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
