package java

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
)

const noComplexityNote = "No complexity issues found"

// decisionRe matches the branching statements counted by the estimate.
var decisionRe = regexp.MustCompile(`\b(?:if|for|while|switch|catch)\s*\(`)

// Estimate is the decision-point count of one source file.
type Estimate struct {
	Statements int
	Lines      int
}

// PerHundredLines normalizes the statement count by file length.
func (e Estimate) PerHundredLines() float64 {
	if e.Lines == 0 {
		return 0
	}

	return float64(e.Statements) / (float64(e.Lines) / 100)
}

// EstimateComplexity counts if, for, while, switch and catch statements.
func EstimateComplexity(source string) Estimate {
	return Estimate{
		Statements: len(decisionRe.FindAllStringIndex(source, -1)),
		Lines:      strings.Count(source, "\n") + 1,
	}
}

func readSource(dir, file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(file)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errReadSource, err)
	}

	return string(data), nil
}

// complexity: mean normalized estimate over files with any branching,
// halved.
func complexity(dir string, files []string) analysis.MetricResult {
	result := analysis.MetricResult{Tool: toolEstimate}

	var (
		total   float64
		counted int
	)

	for _, file := range files {
		source, err := readSource(dir, file)
		if err != nil {
			result.Issues = append(result.Issues, analysis.RawIssue(toolEstimate, file,
				fmt.Sprintf("Error analyzing complexity for %s: %v", file, err)))

			continue
		}

		est := EstimateComplexity(source)
		if est.Statements == 0 {
			continue
		}

		total += est.PerHundredLines()
		counted++

		result.Issues = append(result.Issues, analysis.RawIssue(toolEstimate, file,
			fmt.Sprintf("%s: Estimated complexity: %d statements", file, est.Statements)))
	}

	if counted == 0 {
		result.Score = analysis.MaxScore
		result.Notes = []string{noComplexityNote}

		return result
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(total, counted), 0.5)

	return result
}
