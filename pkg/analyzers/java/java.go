// Package java scores Java code with Checkstyle, PMD and SpotBugs, falling
// back to source scans where a tool is not installed.
package java

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/toolkit"
	"github.com/Sumatoshi-tech/codereport/pkg/language"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

const (
	toolCheckstyle = "checkstyle"
	toolPMD        = "pmd"
	toolSpotBugs   = "spotbugs"
	toolJavac      = "javac"
	toolEstimate   = "keyword estimate"
	toolPatterns   = "pattern scan"

	noFilesNote    = "No Java files found"
	noPMDNote      = "PMD not found, skipping quality analysis"
	noSecurityNote = "No security issues found"

	defaultRuleset = "rulesets/java/quickstart.xml"

	// PMD exits 0 when clean and 4 when violations were found; anything
	// else means the run itself failed.
	pmdExitClean      = 0
	pmdExitViolations = 4
)

// checkstyleConfig is a compact rule set; every module reports at error
// severity so each finding carries the [ERROR] prefix.
const checkstyleConfig = `<?xml version="1.0"?>
<!DOCTYPE module PUBLIC "-//Checkstyle//DTD Checkstyle Configuration 1.3//EN" "https://checkstyle.org/dtds/configuration_1_3.dtd">
<module name="Checker">
  <property name="severity" value="error"/>
  <module name="TreeWalker">
    <module name="MissingSwitchDefault"/>
    <module name="FallThrough"/>
    <module name="VisibilityModifier"/>
    <module name="EmptyBlock"/>
    <module name="EmptyCatchBlock"/>
    <module name="AvoidStarImport"/>
    <module name="UnusedImports"/>
    <module name="OneStatementPerLine"/>
    <module name="OverloadMethodsDeclarationOrder"/>
    <module name="PackageDeclaration"/>
    <module name="MemberName"/>
    <module name="CyclomaticComplexity"/>
  </module>
</module>
`

var (
	checkstyleRe = regexp.MustCompile(`^\[ERROR\]\s+(.+?):(\d+):(?:(\d+):)?\s*(.*?)(?:\s+\[(\w+)\])?$`)
	pmdRe        = regexp.MustCompile(`^(.+?):(\d+):\s*(\w+):\s*(.*)$`)
)

// Config locates the Java tooling.
type Config struct {
	Java          string
	Javac         string
	PMD           string
	PMDRuleset    string
	CheckstyleJar string
	SpotBugsJar   string
	FileWorkers   int
	// ConfigDir receives generated configs and class files. Defaults to
	// os.TempDir().
	ConfigDir string
}

func (c *Config) defaults() {
	if c.Java == "" {
		c.Java = "java"
	}

	if c.Javac == "" {
		c.Javac = toolJavac
	}

	if c.PMD == "" {
		c.PMD = toolPMD
	}

	if c.PMDRuleset == "" {
		c.PMDRuleset = defaultRuleset
	}
}

// Analyzer implements [analysis.Analyzer] for Java.
type Analyzer struct {
	exec toolexec.Executor
	cfg  Config
}

// New creates a Java analyzer.
func New(exec toolexec.Executor, cfg Config) *Analyzer {
	cfg.defaults()

	return &Analyzer{exec: exec, cfg: cfg}
}

// Name returns the analyzer name.
func (a *Analyzer) Name() string { return "java" }

// Extensions returns the handled file extensions.
func (a *Analyzer) Extensions() []string { return language.Extensions(language.Java) }

// Tools lists the external programs used per metric. All are optional:
// the analyzer degrades to a neutral score or a source scan without them.
func (a *Analyzer) Tools() []analysis.Tool {
	return []analysis.Tool{
		{Name: toolCheckstyle, Command: a.cfg.CheckstyleJar, Metric: analysis.Style, Optional: true},
		{Name: toolPMD, Command: a.cfg.PMD, Metric: analysis.Quality, Optional: true},
		{Name: toolSpotBugs, Command: a.cfg.SpotBugsJar, Metric: analysis.Security, Optional: true},
		{Name: toolJavac, Command: a.cfg.Javac, Metric: analysis.Security, Optional: true},
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
		return complexity(dir, files)
	case analysis.Security:
		return a.security(ctx, dir, files)
	default:
		return toolkit.Failed(a.Name(), fmt.Errorf("%w: %s", analysis.ErrUnknownMetric, metric))
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// style: Checkstyle [ERROR] lines per file.
func (a *Analyzer) style(ctx context.Context, dir string, files []string) analysis.MetricResult {
	if !fileExists(a.cfg.CheckstyleJar) {
		return analysis.MetricResult{
			Score: analysis.NeutralScore,
			Tool:  toolCheckstyle,
			Notes: []string{fmt.Sprintf("Checkstyle JAR not found at %s, skipping style analysis", a.cfg.CheckstyleJar)},
		}
	}

	configPath, cleanup, err := toolkit.WriteTemp(a.cfg.ConfigDir, "codereport-checkstyle-*.xml", []byte(checkstyleConfig))
	if err != nil {
		return toolkit.Failed(toolCheckstyle, err)
	}
	defer cleanup()

	outputs, err := toolkit.PerFile(ctx, a.exec, a.cfg.FileWorkers, files, func(file string) toolexec.Command {
		return toolexec.Command{
			Name:  a.cfg.Java,
			Args:  []string{"-jar", a.cfg.CheckstyleJar, "-c", configPath, toolkit.PathArg(file)},
			Dir:   dir,
			Label: toolCheckstyle,
		}
	})
	if err == nil {
		err = toolkit.FirstError(outputs)
	}

	if err != nil {
		return toolkit.Failed(toolCheckstyle, err)
	}

	result := analysis.MetricResult{Tool: toolCheckstyle}

	for _, out := range outputs {
		var found []analysis.Issue

		for _, line := range toolkit.Lines(out.Output.Text()) {
			if strings.HasPrefix(line, "[ERROR]") {
				found = append(found, ParseCheckstyleLine(out.File, line))
			}
		}

		// Checkstyle exits with its error count; a non-zero exit without
		// any reported error is a crash or a rejected configuration.
		if out.Output.ExitCode != 0 && len(found) == 0 {
			return toolkit.Failed(toolCheckstyle, toolkit.ExitError(out.Output))
		}

		result.Issues = append(result.Issues, found...)
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(float64(len(result.Issues)), len(files)), 1)

	return result
}

// ParseCheckstyleLine parses
// "[ERROR] /src/A.java:3:8: Unused import - java.util.List. [UnusedImports]".
// The reported path is replaced by file, the path relative to the analyzed
// directory.
func ParseCheckstyleLine(file, line string) analysis.Issue {
	match := checkstyleRe.FindStringSubmatch(line)
	if match == nil {
		return analysis.RawIssue(toolCheckstyle, file, line)
	}

	issue := analysis.Issue{
		File:     file,
		Rule:     match[5],
		Severity: "error",
		Message:  match[4],
		Tool:     toolCheckstyle,
	}
	issue.Line, _ = strconv.Atoi(match[2])
	issue.Column, _ = strconv.Atoi(match[3])

	return issue
}

// quality: one PMD run over a file list; every violation line is an issue.
func (a *Analyzer) quality(ctx context.Context, dir string, files []string) analysis.MetricResult {
	version, err := a.exec.Run(ctx, toolexec.Command{Name: a.cfg.PMD, Args: []string{"--version"}, Label: toolPMD})
	if err != nil || version.ExitCode != 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return toolkit.Failed(toolPMD, ctxErr)
		}

		return analysis.MetricResult{Score: analysis.NeutralScore, Tool: toolPMD, Notes: []string{noPMDNote}}
	}

	listPath, cleanup, err := toolkit.WriteTemp(a.cfg.ConfigDir, "codereport-pmd-*.txt", []byte(strings.Join(files, "\n")+"\n"))
	if err != nil {
		return toolkit.Failed(toolPMD, err)
	}
	defer cleanup()

	out, err := a.exec.Run(ctx, toolexec.Command{
		Name:  a.cfg.PMD,
		Args:  []string{"check", "-f", "text", "-R", a.cfg.PMDRuleset, "--file-list", listPath, "--no-progress"},
		Dir:   dir,
		Label: toolPMD,
	})
	if err != nil {
		return toolkit.Failed(toolPMD, err)
	}

	if out.ExitCode != pmdExitClean && out.ExitCode != pmdExitViolations {
		return toolkit.Failed(toolPMD, toolkit.ExitError(out))
	}

	result := analysis.MetricResult{Tool: toolPMD}

	for _, line := range toolkit.Lines(string(out.Stdout)) {
		if strings.HasPrefix(line, "Usage:") || strings.HasPrefix(line, "Options:") {
			continue
		}

		result.Issues = append(result.Issues, ParsePMDLine(dir, line))
	}

	result.Score = analysis.ScoreFromAverage(analysis.Average(float64(len(result.Issues)), len(files)), 1)

	return result
}

// ParsePMDLine parses "src/A.java:12:\tUnusedLocalVariable:\tAvoid unused ...".
// Absolute paths under dir are made relative to it.
func ParsePMDLine(dir, line string) analysis.Issue {
	match := pmdRe.FindStringSubmatch(line)
	if match == nil {
		return analysis.RawIssue(toolPMD, "", line)
	}

	issue := analysis.Issue{
		File:     relativeTo(dir, match[1]),
		Rule:     match[3],
		Severity: "warning",
		Message:  strings.TrimSpace(match[4]),
		Tool:     toolPMD,
	}
	issue.Line, _ = strconv.Atoi(match[2])

	return issue
}

func relativeTo(dir, path string) string {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(dir, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}

	return filepath.ToSlash(path)
}

var errReadSource = errors.New("read source")
