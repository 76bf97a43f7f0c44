package analysis

import (
	"time"

	"github.com/Sumatoshi-tech/codereport/pkg/language"
)

// LanguageReport holds the four metric results of one language.
type LanguageReport struct {
	Language language.Language      `json:"language" yaml:"language"`
	Files    []string               `json:"files"    yaml:"files"`
	Analyzer string                 `json:"analyzer" yaml:"analyzer"`
	Analyzed bool                   `json:"analyzed" yaml:"analyzed"`
	Results  map[Metric]MetricResult `json:"results,omitempty" yaml:"results,omitempty"`
}

// FileCount returns the number of files of this language.
func (lr LanguageReport) FileCount() int {
	return len(lr.Files)
}

// Score returns the score of metric, zero when absent.
func (lr LanguageReport) Score(metric Metric) float64 {
	return lr.Results[metric].Score
}

// Overall is the mean of the four metric scores.
func (lr LanguageReport) Overall() float64 {
	var total float64

	for _, metric := range Metrics {
		total += lr.Score(metric)
	}

	return total / float64(len(Metrics))
}

// Report is the aggregated analysis of one submission.
type Report struct {
	Title       string           `json:"title"        yaml:"title"`
	Source      string           `json:"source"       yaml:"source"`
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
	Languages   []LanguageReport `json:"languages"    yaml:"languages"`
	Files       FileIndex        `json:"files"        yaml:"files"`
}

// Analyzed returns the languages that were scored.
func (r *Report) Analyzed() []LanguageReport {
	var out []LanguageReport

	for _, lr := range r.Languages {
		if lr.Analyzed {
			out = append(out, lr)
		}
	}

	return out
}

// TotalFiles counts files over every language.
func (r *Report) TotalFiles() int {
	var n int

	for _, lr := range r.Languages {
		n += lr.FileCount()
	}

	return n
}

// SummaryRow is one line of the summary table.
type SummaryRow struct {
	Label    string             `json:"label"    yaml:"label"`
	Files    int                `json:"files"    yaml:"files"`
	Analyzed bool               `json:"analyzed" yaml:"analyzed"`
	Scores   map[Metric]float64 `json:"scores"   yaml:"scores"`
	Overall  float64            `json:"overall"  yaml:"overall"`
}

// Summary is the cross-language score table.
type Summary struct {
	Rows []SummaryRow `json:"rows" yaml:"rows"`
	// Total averages every analyzed language. Set only when more than one
	// language was analyzed.
	Total *SummaryRow `json:"total,omitempty" yaml:"total,omitempty"`
}

// OverallLabel labels the cross-language row.
const OverallLabel = "Overall"

// Summary builds the summary table. Languages without an analyzer appear
// with Analyzed=false and are left out of the averages.
func (r *Report) Summary() Summary {
	var (
		summary  Summary
		totals   = make(map[Metric]float64, len(Metrics))
		analyzed int
		files    int
	)

	for _, lr := range r.Languages {
		row := SummaryRow{
			Label:    string(lr.Language),
			Files:    lr.FileCount(),
			Analyzed: lr.Analyzed,
			Scores:   make(map[Metric]float64, len(Metrics)),
		}

		files += row.Files

		if lr.Analyzed {
			for _, metric := range Metrics {
				row.Scores[metric] = lr.Score(metric)
				totals[metric] += row.Scores[metric]
			}

			row.Overall = lr.Overall()
			analyzed++
		}

		summary.Rows = append(summary.Rows, row)
	}

	if analyzed > 1 {
		total := SummaryRow{
			Label:    OverallLabel,
			Files:    files,
			Analyzed: true,
			Scores:   make(map[Metric]float64, len(Metrics)),
		}

		var sum float64

		for _, metric := range Metrics {
			total.Scores[metric] = Average(totals[metric], analyzed)
			sum += total.Scores[metric]
		}

		total.Overall = sum / float64(len(Metrics))
		summary.Total = &total
	}

	return summary
}
