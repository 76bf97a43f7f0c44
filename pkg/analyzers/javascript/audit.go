package javascript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/toolkit"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

const (
	noPackageNote    = "No package.json found, skipping security audit"
	noVulnerableNote = "No security vulnerabilities found"

	// auditWeight halves the weighted vulnerability total.
	auditWeight = 0.5

	defaultSeverityWeight = 1
)

// severityWeights rank npm advisory severities. Severities not listed,
// such as "info", weigh defaultSeverityWeight.
var severityWeights = map[string]int{
	"critical": 4,
	"high":     3,
	"moderate": 2,
	"low":      1,
}

var auditSchema = toolkit.MustSchema(`{
  "type": "object",
  "properties": {
    "vulnerabilities": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["severity"],
        "properties": {
          "name": {"type": "string"},
          "severity": {"type": "string"},
          "count": {"type": "integer"}
        }
      }
    },
    "error": {
      "type": "object",
      "properties": {
        "code": {"type": ["string", "null"]},
        "summary": {"type": "string"}
      }
    }
  }
}`)

// AuditReport is the subset of `npm audit --json` (npm 7+) that is scored.
type AuditReport struct {
	Vulnerabilities map[string]AuditVulnerability `json:"vulnerabilities"`
	Error           *AuditError                   `json:"error"`
}

// AuditVulnerability is one vulnerable package.
type AuditVulnerability struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	// Count is only present in legacy reports; each entry otherwise counts once.
	Count int `json:"count"`
}

// AuditError is npm's error document, e.g. for a missing lockfile.
type AuditError struct {
	Code    string `json:"code"`
	Summary string `json:"summary"`
}

// ParseAudit validates and decodes npm audit output.
func ParseAudit(data []byte) (AuditReport, error) {
	var report AuditReport

	err := auditSchema.Decode(toolkit.JSONPayload(data), &report)
	if err != nil {
		return AuditReport{}, fmt.Errorf("npm audit: %w", err)
	}

	return report, nil
}

// security: npm audit weighted by severity.
func (a *Analyzer) security(ctx context.Context, dir string) analysis.MetricResult {
	_, statErr := os.Stat(filepath.Join(dir, "package.json"))
	if errors.Is(statErr, os.ErrNotExist) {
		return analysis.MetricResult{
			Score: analysis.NeutralScore,
			Tool:  toolNPMAudit,
			Notes: []string{noPackageNote},
		}
	}

	out, err := a.exec.Run(ctx, toolexec.Command{
		Name:  a.cfg.Npm,
		Args:  []string{"audit", "--json"},
		Dir:   dir,
		Label: toolNPMAudit,
	})
	if err != nil {
		return toolkit.Failed(toolNPMAudit, err)
	}

	report, parseErr := ParseAudit(out.Stdout)
	if parseErr != nil {
		return analysis.MetricResult{
			Tool: toolNPMAudit,
			Issues: []analysis.Issue{
				analysis.RawIssue(toolNPMAudit, "", fmt.Sprintf("Error parsing npm audit output for %s: %v", dir, parseErr)),
			},
		}
	}

	if report.Error != nil {
		return toolkit.Failed(toolNPMAudit, fmt.Errorf("%s: %s", report.Error.Code, report.Error.Summary))
	}

	return scoreAudit(report)
}

func scoreAudit(report AuditReport) analysis.MetricResult {
	result := analysis.MetricResult{Tool: toolNPMAudit}

	names := make([]string, 0, len(report.Vulnerabilities))
	for name := range report.Vulnerabilities {
		names = append(names, name)
	}

	slices.Sort(names)

	var weighted int

	for _, key := range names {
		vuln := report.Vulnerabilities[key]

		name := vuln.Name
		if name == "" {
			name = key
		}

		count := vuln.Count
		if count == 0 {
			count = 1
		}

		weighted += severityWeight(vuln.Severity) * count

		msg := fmt.Sprintf("Found %d %s severity vulnerability(ies) in %s", count, vuln.Severity, name)

		result.Issues = append(result.Issues, analysis.Issue{
			File:     "package.json",
			Rule:     name,
			Severity: vuln.Severity,
			Message:  msg,
			Tool:     toolNPMAudit,
			Raw:      msg,
		})
	}

	if len(result.Issues) == 0 {
		result.Score = analysis.MaxScore
		result.Notes = []string{noVulnerableNote}

		return result
	}

	result.Score = analysis.ScoreFromAverage(float64(weighted), auditWeight)

	return result
}

func severityWeight(severity string) int {
	if weight, ok := severityWeights[severity]; ok {
		return weight
	}

	return defaultSeverityWeight
}
