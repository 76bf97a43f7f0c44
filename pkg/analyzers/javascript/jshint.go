package javascript

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/toolkit"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

// jshintReporter prints the findings as a JSON array. JSHint ships no
// JSON reporter of its own.
const jshintReporter = `module.exports = {
  reporter: function (results) {
    var out = results.map(function (r) {
      return {file: r.file, line: r.error.line, col: r.error.character, reason: r.error.reason, code: r.error.code};
    });
    process.stdout.write(JSON.stringify(out));
  }
};
`

// jshintWeight scales the per-file finding count for the quality score.
const jshintWeight = 2

var jshintSchema = toolkit.MustSchema(`{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["line", "reason"],
    "properties": {
      "file": {"type": "string"},
      "line": {"type": "integer"},
      "col": {"type": "integer"},
      "reason": {"type": "string"},
      "code": {"type": ["string", "null"]}
    }
  }
}`)

// JSHintFinding is one JSHint warning.
type JSHintFinding struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Col    int    `json:"col"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// ParseJSHint validates and decodes the reporter output. Empty output
// means a clean file.
func ParseJSHint(data []byte) ([]JSHintFinding, error) {
	payload := toolkit.JSONPayload(data)
	if len(toolkit.Lines(string(payload))) == 0 {
		return nil, nil
	}

	var findings []JSHintFinding

	err := jshintSchema.Decode(payload, &findings)
	if err != nil {
		return nil, fmt.Errorf("jshint: %w", err)
	}

	return findings, nil
}

// quality: JSHint warnings per file, weighted by two.
func (a *Analyzer) quality(ctx context.Context, dir string, files []string) analysis.MetricResult {
	reporter, cleanup, err := toolkit.WriteTemp(a.cfg.ConfigDir, "codereport-jshint-*.js", []byte(jshintReporter))
	if err != nil {
		return toolkit.Failed(toolJSHint, err)
	}
	defer cleanup()

	outputs, err := toolkit.PerFile(ctx, a.exec, a.cfg.FileWorkers, files, func(file string) toolexec.Command {
		return toolexec.Command{
			Name:  a.cfg.Npx,
			Args:  []string{toolJSHint, "--reporter=" + reporter, toolkit.PathArg(file)},
			Dir:   dir,
			Label: toolJSHint,
		}
	})
	if err == nil {
		err = toolkit.FirstError(outputs)
	}

	if err != nil {
		return toolkit.Failed(toolJSHint, err)
	}

	if err := unparsable(outputs, validJSHint); err != nil {
		return toolkit.Failed(toolJSHint, err)
	}

	result := analysis.MetricResult{Tool: toolJSHint}

	var total int

	for _, out := range outputs {
		findings, parseErr := ParseJSHint(out.Output.Stdout)
		if parseErr != nil || !validJSHint(out.Output) {
			result.Issues = append(result.Issues, parseError(toolJSHint, "JSHint", out))

			continue
		}

		for _, finding := range findings {
			result.Issues = append(result.Issues, analysis.Issue{
				File:     out.File,
				Line:     finding.Line,
				Column:   finding.Col,
				Rule:     finding.Code,
				Severity: "warning",
				Message:  finding.Reason,
				Tool:     toolJSHint,
			})
			total++
		}
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(float64(total), len(files)), jshintWeight)

	return result
}

// validJSHint accepts reporter output. Silence is only clean when JSHint
// exited zero.
func validJSHint(out toolexec.Output) bool {
	if out.ExitCode != 0 && len(toolkit.Lines(string(out.Stdout))) == 0 {
		return false
	}

	_, err := ParseJSHint(out.Stdout)

	return err == nil
}
