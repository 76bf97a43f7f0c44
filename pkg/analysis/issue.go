package analysis

import (
	"fmt"
	"slices"
	"strings"
)

// Issue is one finding reported by a tool.
type Issue struct {
	File     string `json:"file,omitempty"     yaml:"file,omitempty"`
	Line     int    `json:"line,omitempty"     yaml:"line,omitempty"`
	Column   int    `json:"column,omitempty"   yaml:"column,omitempty"`
	Rule     string `json:"rule,omitempty"     yaml:"rule,omitempty"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Message  string `json:"message"            yaml:"message"`
	Tool     string `json:"tool,omitempty"     yaml:"tool,omitempty"`
	// Raw is the tool's original line when the finding was not structured.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// String renders "file:line:col - message (rule)". Unstructured findings
// render their raw text.
func (i Issue) String() string {
	if i.Raw != "" {
		return i.Raw
	}

	var sb strings.Builder

	if i.File != "" {
		sb.WriteString(i.File)

		if i.Line > 0 {
			fmt.Fprintf(&sb, ":%d", i.Line)

			if i.Column > 0 {
				fmt.Fprintf(&sb, ":%d", i.Column)
			}
		}

		sb.WriteString(" - ")
	}

	sb.WriteString(i.Message)

	if i.Rule != "" {
		fmt.Fprintf(&sb, " (%s)", i.Rule)
	}

	return sb.String()
}

// RawIssue wraps a free-form tool line.
func RawIssue(tool, file, line string) Issue {
	return Issue{Tool: tool, File: file, Message: line, Raw: line}
}

// ToolError builds the issue recorded when a tool cannot be run.
func ToolError(tool string, err error) Issue {
	return RawIssue(tool, "", fmt.Sprintf("Error running %s: %v", tool, err))
}

// MetricResult is the outcome of one metric for one language.
type MetricResult struct {
	Metric Metric  `json:"metric" yaml:"metric"`
	Score  float64 `json:"score"  yaml:"score"`
	Tool   string  `json:"tool"   yaml:"tool"`
	Issues []Issue `json:"issues" yaml:"issues"`
	// Notes are informational lines that are not findings, such as
	// "No security issues found".
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Lines returns notes followed by rendered issues, the order shown in reports.
func (r MetricResult) Lines() []string {
	lines := make([]string, 0, len(r.Notes)+len(r.Issues))
	lines = append(lines, r.Notes...)

	for _, issue := range r.Issues {
		lines = append(lines, issue.String())
	}

	return lines
}

// FileIndex groups issues by file path and metric.
type FileIndex map[string]map[Metric][]Issue

// Add records issue under its file. Issues without a file are ignored.
func (fi FileIndex) Add(metric Metric, issue Issue) {
	if issue.File == "" {
		return
	}

	byMetric, ok := fi[issue.File]
	if !ok {
		byMetric = make(map[Metric][]Issue)
		fi[issue.File] = byMetric
	}

	byMetric[metric] = append(byMetric[metric], issue)
}

// FileStat summarizes the issues of one file.
type FileStat struct {
	Path   string         `json:"path"   yaml:"path"`
	Counts map[Metric]int `json:"counts" yaml:"counts"`
	Total  int            `json:"total"  yaml:"total"`
}

// Top returns up to n files with the most issues, ties broken by path.
func (fi FileIndex) Top(n int) []FileStat {
	stats := make([]FileStat, 0, len(fi))

	for path, byMetric := range fi {
		stat := FileStat{Path: path, Counts: make(map[Metric]int, len(byMetric))}

		for metric, issues := range byMetric {
			stat.Counts[metric] = len(issues)
			stat.Total += len(issues)
		}

		stats = append(stats, stat)
	}

	slices.SortFunc(stats, func(a, b FileStat) int {
		if a.Total != b.Total {
			return b.Total - a.Total
		}

		return strings.Compare(a.Path, b.Path)
	})

	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}

	return stats
}
