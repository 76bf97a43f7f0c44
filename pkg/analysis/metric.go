// Package analysis aggregates per-language analyzer results into a report.
package analysis

import (
	"fmt"
	"strings"
)

// Metric is one of the four scored dimensions.
type Metric string

// Metrics in report order.
const (
	Style      Metric = "style"
	Quality    Metric = "quality"
	Complexity Metric = "complexity"
	Security   Metric = "security"
)

// Metrics lists every metric in the fixed report order.
var Metrics = []Metric{Style, Quality, Complexity, Security}

// Title returns the capitalized metric name used in headings.
func (m Metric) Title() string {
	if m == "" {
		return ""
	}

	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

// ParseMetric maps a name to a Metric, case-insensitively.
func ParseMetric(name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Metrics {
		if m == known {
			return m, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// MaxScore is the best possible score.
const MaxScore = 10.0

// NeutralScore is used when a tool is unavailable and the metric cannot be
// measured.
const NeutralScore = 5.0

// ScoreFromAverage turns an average finding count into a 0..10 score:
// max(0, 10 - min(10, avg*weight)).
func ScoreFromAverage(avg, weight float64) float64 {
	return max(0, MaxScore-min(MaxScore, avg*weight))
}

// Average divides total by n, returning 0 when n is zero.
func Average(total float64, n int) float64 {
	if n == 0 {
		return 0
	}

	return total / float64(n)
}

// Rating bands.
const (
	RatingExcellent = "Excellent"
	RatingGood      = "Good"
	RatingAverage   = "Average"
	RatingPoor      = "Poor"
	RatingVeryPoor  = "Very Poor"
)

const (
	excellentThreshold = 9
	goodThreshold      = 7
	averageThreshold   = 5
	poorThreshold      = 3
)

// Rating maps a score to its descriptive band.
func Rating(score float64) string {
	switch {
	case score >= excellentThreshold:
		return RatingExcellent
	case score >= goodThreshold:
		return RatingGood
	case score >= averageThreshold:
		return RatingAverage
	case score >= poorThreshold:
		return RatingPoor
	default:
		return RatingVeryPoor
	}
}
