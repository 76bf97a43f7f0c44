// Package javascript scores JavaScript and TypeScript code with ESLint,
// JSHint and npm audit.
package javascript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/toolkit"
	"github.com/Sumatoshi-tech/codereport/pkg/language"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

const (
	toolESLint   = "eslint"
	toolJSHint   = "jshint"
	toolNPMAudit = "npm audit"

	noFilesNote = "No JavaScript/TypeScript files found"

	// defaultComplexityMax is the ESLint complexity rule maximum.
	defaultComplexityMax = 10

	// legacyConfigEnv makes ESLint 8 and 9 accept eslintrc-style configs.
	legacyConfigEnv = "ESLINT_USE_FLAT_CONFIG=false"
)

var complexityRe = regexp.MustCompile(`has a complexity of (\d+)`)

// projectConfigs are ESLint config files that, when present in the analyzed
// directory, replace the built-in recommended config for style runs.
var projectConfigs = []string{
	".eslintrc.json", ".eslintrc.js", ".eslintrc.cjs", ".eslintrc.yaml", ".eslintrc.yml", ".eslintrc",
}

var eslintSchema = toolkit.MustSchema(`{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["filePath", "messages"],
    "properties": {
      "filePath": {"type": "string"},
      "messages": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["message"],
          "properties": {
            "ruleId": {"type": ["string", "null"]},
            "severity": {"type": "integer"},
            "message": {"type": "string"},
            "line": {"type": "integer"},
            "column": {"type": "integer"}
          }
        }
      }
    }
  }
}`)

// ESLintFile is one entry of `eslint --format=json` output.
type ESLintFile struct {
	FilePath string          `json:"filePath"`
	Messages []ESLintMessage `json:"messages"`
}

// ESLintMessage is one ESLint finding.
type ESLintMessage struct {
	RuleID   *string `json:"ruleId"`
	Severity int     `json:"severity"`
	Message  string  `json:"message"`
	Line     int     `json:"line"`
	Column   int     `json:"column"`
}

// Rule returns the rule id or "" for parser errors.
func (m ESLintMessage) Rule() string {
	if m.RuleID == nil {
		return ""
	}

	return *m.RuleID
}

// ParseESLint validates and decodes ESLint JSON output.
func ParseESLint(data []byte) ([]ESLintFile, error) {
	var files []ESLintFile

	err := eslintSchema.Decode(toolkit.JSONPayload(data), &files)
	if err != nil {
		return nil, fmt.Errorf("eslint: %w", err)
	}

	return files, nil
}

// Config locates the Node tooling.
type Config struct {
	Npx           string
	Npm           string
	FileWorkers   int
	ComplexityMax int
	// ConfigDir receives generated tool configs. Defaults to os.TempDir().
	ConfigDir string
}

// Analyzer implements [analysis.Analyzer] for JavaScript and TypeScript.
type Analyzer struct {
	exec toolexec.Executor
	cfg  Config
}

// New creates a JavaScript analyzer.
func New(exec toolexec.Executor, cfg Config) *Analyzer {
	if cfg.Npx == "" {
		cfg.Npx = "npx"
	}

	if cfg.Npm == "" {
		cfg.Npm = "npm"
	}

	if cfg.ComplexityMax <= 0 {
		cfg.ComplexityMax = defaultComplexityMax
	}

	return &Analyzer{exec: exec, cfg: cfg}
}

// Name returns the analyzer name.
func (a *Analyzer) Name() string { return "javascript" }

// Extensions returns the handled extensions of both JavaScript and TypeScript.
func (a *Analyzer) Extensions() []string {
	exts := append(language.Extensions(language.JavaScript), language.Extensions(language.TypeScript)...)
	slices.Sort(exts)

	return exts
}

// Tools lists the external programs used per metric.
func (a *Analyzer) Tools() []analysis.Tool {
	return []analysis.Tool{
		{Name: toolESLint, Command: a.cfg.Npx, Metric: analysis.Style},
		{Name: toolJSHint, Command: a.cfg.Npx, Metric: analysis.Quality},
		{Name: toolESLint + " complexity", Command: a.cfg.Npx, Metric: analysis.Complexity},
		{Name: toolNPMAudit, Command: a.cfg.Npm, Metric: analysis.Security, Optional: true},
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
		return a.security(ctx, dir)
	default:
		return toolkit.Failed(a.Name(), fmt.Errorf("%w: %s", analysis.ErrUnknownMetric, metric))
	}
}

// recommendedConfig mirrors a fresh `eslint --init` with eslint:recommended.
var recommendedConfig = map[string]any{
	"root":    true,
	"extends": "eslint:recommended",
	"parserOptions": map[string]any{
		"ecmaVersion": 2020,
		"sourceType":  "module",
	},
	"env": map[string]any{
		"browser": true,
		"node":    true,
		"es6":     true,
	},
}

func complexityConfig(limit int) map[string]any {
	return map[string]any{
		"root": true,
		"parserOptions": map[string]any{
			"ecmaVersion": 2020,
			"sourceType":  "module",
		},
		"rules": map[string]any{
			"complexity": []any{"error", limit},
		},
	}
}

// writeConfig stores a generated config outside the analyzed tree so
// concurrent metrics never race on the user's directory.
func (a *Analyzer) writeConfig(pattern string, config any) (string, func(), error) {
	data, err := json.Marshal(config)
	if err != nil {
		return "", nil, fmt.Errorf("encode config: %w", err)
	}

	return toolkit.WriteTemp(a.cfg.ConfigDir, pattern, data)
}

func hasProjectConfig(dir string) bool {
	for _, name := range projectConfigs {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}

	return false
}

// eslintArgs returns the npx argument list for one file.
func eslintArgs(configPath, file string) []string {
	args := []string{toolESLint, "--format=json"}
	if configPath != "" {
		args = append(args, "--no-eslintrc", "-c", configPath)
	}

	return append(args, toolkit.PathArg(file))
}

// style: ESLint messages per file.
func (a *Analyzer) style(ctx context.Context, dir string, files []string) analysis.MetricResult {
	var configPath string

	if !hasProjectConfig(dir) {
		path, cleanup, err := a.writeConfig("codereport-eslint-*.json", recommendedConfig)
		if err != nil {
			return toolkit.Failed(toolESLint, err)
		}
		defer cleanup()

		configPath = path
	}

	outputs, err := a.eslintPerFile(ctx, dir, files, configPath)
	if err != nil {
		return toolkit.Failed(toolESLint, err)
	}

	if err := unparsable(outputs, validESLint); err != nil {
		return toolkit.Failed(toolESLint, err)
	}

	result := analysis.MetricResult{Tool: toolESLint}

	var total int

	for _, out := range outputs {
		parsed, parseErr := ParseESLint(out.Output.Stdout)
		if parseErr != nil {
			result.Issues = append(result.Issues, parseError(toolESLint, "ESLint", out))

			continue
		}

		for _, entry := range parsed {
			for _, msg := range entry.Messages {
				result.Issues = append(result.Issues, eslintIssue(out.File, msg))
				total++
			}
		}
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(float64(total), len(files)), 1)

	return result
}

// complexity: mean reported complexity over files with findings, halved.
func (a *Analyzer) complexity(ctx context.Context, dir string, files []string) analysis.MetricResult {
	configPath, cleanup, err := a.writeConfig("codereport-complexity-*.json", complexityConfig(a.cfg.ComplexityMax))
	if err != nil {
		return toolkit.Failed(toolESLint, err)
	}
	defer cleanup()

	outputs, err := a.eslintPerFile(ctx, dir, files, configPath)
	if err != nil {
		return toolkit.Failed(toolESLint, err)
	}

	if err := unparsable(outputs, validESLint); err != nil {
		return toolkit.Failed(toolESLint, err)
	}

	result := analysis.MetricResult{Tool: toolESLint}

	var (
		total     int
		withFinds int
	)

	for _, out := range outputs {
		parsed, parseErr := ParseESLint(out.Output.Stdout)
		if parseErr != nil {
			result.Issues = append(result.Issues, analysis.RawIssue(toolESLint, out.File,
				fmt.Sprintf("Error analyzing complexity for %s: %v", out.File, parseErr)))

			continue
		}

		found := 0

		for _, entry := range parsed {
			for _, msg := range entry.Messages {
				if msg.Rule() != "complexity" {
					continue
				}

				match := complexityRe.FindStringSubmatch(msg.Message)
				if match == nil {
					continue
				}

				n, _ := strconv.Atoi(match[1])
				total += n
				found++

				issue := eslintIssue(out.File, msg)
				issue.Rule = ""
				result.Issues = append(result.Issues, issue)
			}
		}

		if found > 0 {
			withFinds++
		}
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(float64(total), withFinds), 0.5)

	return result
}

func (a *Analyzer) eslintPerFile(ctx context.Context, dir string, files []string, configPath string) ([]toolkit.FileOutput, error) {
	outputs, err := toolkit.PerFile(ctx, a.exec, a.cfg.FileWorkers, files, func(file string) toolexec.Command {
		return toolexec.Command{
			Name:  a.cfg.Npx,
			Args:  eslintArgs(configPath, file),
			Dir:   dir,
			Env:   []string{legacyConfigEnv},
			Label: toolESLint,
		}
	})
	if err != nil {
		return nil, err
	}

	return outputs, toolkit.FirstError(outputs)
}

func validESLint(out toolexec.Output) bool {
	_, err := ParseESLint(out.Stdout)

	return err == nil
}

// unparsable returns the failure of the first run when no run produced
// output that valid accepts. A single bad file is reported as an issue
// instead; every file failing means the tool itself is broken.
func unparsable(outputs []toolkit.FileOutput, valid func(toolexec.Output) bool) error {
	if len(outputs) == 0 {
		return nil
	}

	for _, out := range outputs {
		if valid(out.Output) {
			return nil
		}
	}

	return toolkit.ExitError(outputs[0].Output)
}

func eslintIssue(file string, msg ESLintMessage) analysis.Issue {
	severity := "warning"
	if msg.Severity == 2 {
		severity = "error"
	}

	return analysis.Issue{
		File:     file,
		Line:     msg.Line,
		Column:   msg.Column,
		Rule:     msg.Rule(),
		Severity: severity,
		Message:  msg.Message,
		Tool:     toolESLint,
	}
}

func parseError(tool, display string, out toolkit.FileOutput) analysis.Issue {
	return analysis.RawIssue(tool, out.File, fmt.Sprintf("Error parsing %s output for %s", display, out.File))
}
