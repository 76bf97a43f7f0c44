package python

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/toolkit"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

var banditSchema = toolkit.MustSchema(`{
  "type": "object",
  "required": ["results"],
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["filename", "issue_text", "line_number", "test_id"],
        "properties": {
          "filename": {"type": "string"},
          "issue_text": {"type": "string"},
          "issue_severity": {"type": "string"},
          "issue_confidence": {"type": "string"},
          "line_number": {"type": "integer"},
          "col_offset": {"type": "integer"},
          "test_id": {"type": "string"},
          "test_name": {"type": "string"}
        }
      }
    }
  }
}`)

// BanditReport is the subset of `bandit -f json` output that is scored.
type BanditReport struct {
	Results []BanditResult `json:"results"`
}

// BanditResult is one bandit finding.
type BanditResult struct {
	Filename   string `json:"filename"`
	IssueText  string `json:"issue_text"`
	Severity   string `json:"issue_severity"`
	Confidence string `json:"issue_confidence"`
	LineNumber int    `json:"line_number"`
	ColOffset  int    `json:"col_offset"`
	TestID     string `json:"test_id"`
	TestName   string `json:"test_name"`
}

// ParseBandit validates and decodes bandit JSON output.
func ParseBandit(data []byte) (BanditReport, error) {
	var report BanditReport

	err := banditSchema.Decode(toolkit.JSONPayload(data), &report)
	if err != nil {
		return BanditReport{}, fmt.Errorf("bandit: %w", err)
	}

	return report, nil
}

// security: one bandit run over the language's files; score = 10 - findings.
func (a *Analyzer) security(ctx context.Context, dir string, files []string) analysis.MetricResult {
	args := append([]string{"-f", "json", "-q"}, toolkit.PathArgs(files)...)

	out, err := a.exec.Run(ctx, toolexec.Command{Name: a.cfg.Bandit, Args: args, Dir: dir, Label: toolBandit})
	if err != nil {
		return toolkit.Failed(toolBandit, err)
	}

	report, parseErr := ParseBandit(out.Stdout)
	if parseErr != nil {
		return analysis.MetricResult{
			Tool: toolBandit,
			Issues: []analysis.Issue{
				analysis.RawIssue(toolBandit, "", fmt.Sprintf("Error parsing bandit output for %s: %v", dir, parseErr)),
			},
		}
	}

	result := analysis.MetricResult{Tool: toolBandit}

	for _, finding := range report.Results {
		result.Issues = append(result.Issues, analysis.Issue{
			File:     strings.TrimPrefix(finding.Filename, "./"),
			Line:     finding.LineNumber,
			Column:   finding.ColOffset,
			Rule:     finding.TestID,
			Severity: strings.ToLower(finding.Severity),
			Message:  finding.IssueText,
			Tool:     toolBandit,
		})
	}

	if len(result.Issues) == 0 {
		result.Score = analysis.MaxScore
		result.Notes = []string{noSecurityNote}

		return result
	}

	result.Score = analysis.ScoreFromAverage(float64(len(result.Issues)), 1)

	return result
}
