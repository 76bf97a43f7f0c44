// Package analysistest provides an in-memory analyzer for tests of code
// that drives analyses without external tools.
package analysistest

import (
	"context"
	"sync/atomic"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
)

// Analyzer scores every metric with a fixed value and reports one issue
// per file.
type Analyzer struct {
	AnalyzerName string
	Exts         []string
	Scores       map[analysis.Metric]float64

	calls atomic.Int32
}

// Python returns an analyzer for .py files scoring 8 on every metric.
func Python() *Analyzer {
	return &Analyzer{
		AnalyzerName: "python",
		Exts:         []string{".py"},
		Scores: map[analysis.Metric]float64{
			analysis.Style: 8, analysis.Quality: 8, analysis.Complexity: 8, analysis.Security: 8,
		},
	}
}

// Name implements analysis.Analyzer.
func (a *Analyzer) Name() string { return a.AnalyzerName }

// Extensions implements analysis.Analyzer.
func (a *Analyzer) Extensions() []string { return a.Exts }

// Analyze implements analysis.Analyzer.
func (a *Analyzer) Analyze(_ context.Context, metric analysis.Metric, _ string, files []string) analysis.MetricResult {
	a.calls.Add(1)

	result := analysis.MetricResult{Metric: metric, Score: a.Scores[metric], Tool: a.AnalyzerName}
	for _, file := range files {
		result.Issues = append(result.Issues, analysis.Issue{
			File: file, Line: 1, Rule: "T001", Message: "finding", Tool: a.AnalyzerName,
		})
	}

	return result
}

// Calls returns how many metric runs happened.
func (a *Analyzer) Calls() int {
	return int(a.calls.Load())
}

// Registry wraps analyzers in a registry, panicking on conflicts.
func Registry(analyzers ...analysis.Analyzer) *analysis.Registry {
	reg, err := analysis.NewRegistry(analyzers...)
	if err != nil {
		panic(err)
	}

	return reg
}
