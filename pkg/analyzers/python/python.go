// Package python scores Python code with flake8, pylint, radon and bandit.
package python

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/toolkit"
	"github.com/Sumatoshi-tech/codereport/pkg/language"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

const (
	toolFlake8 = "flake8"
	toolPylint = "pylint"
	toolRadon  = "radon"
	toolBandit = "bandit"

	noFilesNote    = "No Python files found"
	noSecurityNote = "No security issues found"

	// pylintUsageError is the exit status bit pylint sets when it could
	// not run at all.
	pylintUsageError = 32
)

var (
	ratingRe  = regexp.MustCompile(`Your code has been rated at ([-\d.]+)/10`)
	locatedRe = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*([A-Z]+\d+):?\s*(.*)$`)
	radonRe   = regexp.MustCompile(`^\s*([FMC])\s+(\d+):(\d+)\s+(.+?)\s+-\s+([A-F])\s+\((\d+)\)`)
)

// Config locates the Python tools.
type Config struct {
	Flake8      string
	Pylint      string
	Radon       string
	Bandit      string
	FileWorkers int
}

func (c *Config) defaults() {
	if c.Flake8 == "" {
		c.Flake8 = toolFlake8
	}

	if c.Pylint == "" {
		c.Pylint = toolPylint
	}

	if c.Radon == "" {
		c.Radon = toolRadon
	}

	if c.Bandit == "" {
		c.Bandit = toolBandit
	}
}

// Analyzer implements [analysis.Analyzer] for Python.
type Analyzer struct {
	exec toolexec.Executor
	cfg  Config
}

// New creates a Python analyzer.
func New(exec toolexec.Executor, cfg Config) *Analyzer {
	cfg.defaults()

	return &Analyzer{exec: exec, cfg: cfg}
}

// Name returns the analyzer name.
func (a *Analyzer) Name() string { return "python" }

// Extensions returns the handled file extensions.
func (a *Analyzer) Extensions() []string { return language.Extensions(language.Python) }

// Tools lists the external programs used per metric.
func (a *Analyzer) Tools() []analysis.Tool {
	return []analysis.Tool{
		{Name: toolFlake8, Command: a.cfg.Flake8, Metric: analysis.Style},
		{Name: toolPylint, Command: a.cfg.Pylint, Metric: analysis.Quality},
		{Name: toolRadon, Command: a.cfg.Radon, Metric: analysis.Complexity},
		{Name: toolBandit, Command: a.cfg.Bandit, Metric: analysis.Security},
	}
}

// Analyze computes one metric over files.
func (a *Analyzer) Analyze(ctx context.Context, metric analysis.Metric, dir string, files []string) analysis.MetricResult {
	if len(files) == 0 {
		return analysis.MetricResult{Score: analysis.MaxScore, Notes: []string{noFilesNote}}
	}

	switch metric {
	case analysis.Style:
		return a.style(ctx, dir, files)
	case analysis.Quality:
		return a.quality(ctx, dir, files)
	case analysis.Complexity:
		return a.complexity(ctx, dir, files)
	case analysis.Security:
		return a.security(ctx, dir, files)
	default:
		return toolkit.Failed(a.Name(), fmt.Errorf("%w: %s", analysis.ErrUnknownMetric, metric))
	}
}

// style: every flake8 line is an issue, score = 10 - issues per file.
func (a *Analyzer) style(ctx context.Context, dir string, files []string) analysis.MetricResult {
	outputs, err := toolkit.PerFile(ctx, a.exec, a.cfg.FileWorkers, files, func(file string) toolexec.Command {
		return toolexec.Command{Name: a.cfg.Flake8, Args: []string{toolkit.PathArg(file)}, Dir: dir, Label: toolFlake8}
	})
	if err == nil {
		err = toolkit.FirstError(outputs)
	}

	if err != nil {
		return toolkit.Failed(toolFlake8, err)
	}

	result := analysis.MetricResult{Tool: toolFlake8}

	for _, out := range outputs {
		for _, line := range toolkit.Lines(out.Output.Text()) {
			result.Issues = append(result.Issues, parseLocated(toolFlake8, out.File, line))
		}
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(float64(len(result.Issues)), len(files)), 1)

	return result
}

// quality: mean pylint rating over all files; unrated files count as 0.
func (a *Analyzer) quality(ctx context.Context, dir string, files []string) analysis.MetricResult {
	outputs, err := toolkit.PerFile(ctx, a.exec, a.cfg.FileWorkers, files, func(file string) toolexec.Command {
		return toolexec.Command{
			Name:  a.cfg.Pylint,
			Args:  []string{"--output-format=text", toolkit.PathArg(file)},
			Dir:   dir,
			Label: toolPylint,
		}
	})
	if err == nil {
		err = toolkit.FirstError(outputs)
	}

	if err != nil {
		return toolkit.Failed(toolPylint, err)
	}

	result := analysis.MetricResult{Tool: toolPylint}

	var total float64

	for _, out := range outputs {
		if out.Output.ExitCode&pylintUsageError != 0 {
			return toolkit.Failed(toolPylint, toolkit.ExitError(out.Output))
		}

		text := out.Output.Text()
		total += PylintRating(text)

		for _, line := range toolkit.Lines(text) {
			if strings.Contains(line, ":") && !strings.HasPrefix(line, "Your code") {
				result.Issues = append(result.Issues, parseLocated(toolPylint, out.File, line))
			}
		}
	}

	result.Score = analysis.Average(total, len(files))

	return result
}

// PylintRating extracts the "rated at X/10" score, clamped at zero.
// Output without a rating scores 0.
func PylintRating(output string) float64 {
	match := ratingRe.FindStringSubmatch(output)
	if match == nil {
		return 0
	}

	score, err := strconv.ParseFloat(match[1], 64)
	if err != nil || score < 0 {
		return 0
	}

	return min(score, analysis.MaxScore)
}

// complexity: mean radon block complexity.
func (a *Analyzer) complexity(ctx context.Context, dir string, files []string) analysis.MetricResult {
	outputs, err := toolkit.PerFile(ctx, a.exec, a.cfg.FileWorkers, files, func(file string) toolexec.Command {
		return toolexec.Command{
			Name:  a.cfg.Radon,
			Args:  []string{"cc", "-s", "--no-assert", toolkit.PathArg(file)},
			Dir:   dir,
			Label: toolRadon,
		}
	})
	if err == nil {
		err = toolkit.FirstError(outputs)
	}

	if err != nil {
		return toolkit.Failed(toolRadon, err)
	}

	result := analysis.MetricResult{Tool: toolRadon}

	var (
		sum    int
		blocks int
	)

	for _, out := range outputs {
		if out.Output.ExitCode != 0 {
			return toolkit.Failed(toolRadon, toolkit.ExitError(out.Output))
		}

		for _, line := range toolkit.Lines(out.Output.Text()) {
			block, ok := ParseRadonLine(line)
			if !ok {
				continue
			}

			sum += block.Complexity
			blocks++

			result.Issues = append(result.Issues, analysis.Issue{
				File:     out.File,
				Line:     block.Line,
				Rule:     "cc",
				Severity: block.Rank,
				Message:  strings.TrimSpace(line),
				Tool:     toolRadon,
				Raw:      out.File + ": " + strings.TrimSpace(line),
			})
		}
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(float64(sum), blocks), 1)

	return result
}

// RadonBlock is one function, method or class line of `radon cc -s`.
type RadonBlock struct {
	Kind       string
	Line       int
	Name       string
	Rank       string
	Complexity int
}

// ParseRadonLine parses "    F 12:0 handler - B (7)".
func ParseRadonLine(line string) (RadonBlock, bool) {
	match := radonRe.FindStringSubmatch(line)
	if match == nil {
		return RadonBlock{}, false
	}

	lineNo, _ := strconv.Atoi(match[2])
	cc, _ := strconv.Atoi(match[6])

	return RadonBlock{Kind: match[1], Line: lineNo, Name: match[4], Rank: match[5], Complexity: cc}, true
}

// parseLocated turns "path:line:col: CODE message" into an issue, keeping
// the raw line for display.
func parseLocated(tool, file, line string) analysis.Issue {
	issue := analysis.RawIssue(tool, file, line)

	match := locatedRe.FindStringSubmatch(line)
	if match == nil {
		return issue
	}

	issue.File = strings.TrimPrefix(match[1], "./")
	issue.Line, _ = strconv.Atoi(match[2])
	issue.Column, _ = strconv.Atoi(match[3])
	issue.Rule = match[4]
	issue.Message = match[5]

	return issue
}
