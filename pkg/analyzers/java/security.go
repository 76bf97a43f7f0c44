package java

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strconv"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/toolkit"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

// securityWeight halves the finding count.
const securityWeight = 0.5

// riskyCall is one source pattern of the fallback scan.
type riskyCall struct {
	re    *regexp.Regexp
	label string
}

var riskyCalls = []riskyCall{
	{regexp.MustCompile(`\.exec\s*\(`), "Potential command injection"},
	{regexp.MustCompile(`\.executeQuery\s*\(.*\+`), "Potential SQL injection"},
	{regexp.MustCompile(`\.executeUpdate\s*\(.*\+`), "Potential SQL injection"},
	{regexp.MustCompile(`\.createStatement\s*\(.*\+`), "Potential SQL injection"},
	{regexp.MustCompile(`\.prepareStatement\s*\(.*\+`), "Potential SQL injection"},
	{regexp.MustCompile(`\.createQuery\s*\(.*\+`), "Potential HQL/JPQL injection"},
	{regexp.MustCompile(`\.eval\s*\(`), "Potential code injection"},
	{regexp.MustCompile(`\.deserialize\s*\(`), "Potential deserialization vulnerability"},
	{regexp.MustCompile(`\.readObject\s*\(`), "Potential deserialization vulnerability"},
	{regexp.MustCompile(`\.readUnshared\s*\(`), "Potential deserialization vulnerability"},
	{regexp.MustCompile(`\.readExternal\s*\(`), "Potential deserialization vulnerability"},
	{regexp.MustCompile(`\.readResolve\s*\(`), "Potential deserialization vulnerability"},
	{regexp.MustCompile(`\.readObjectNoData\s*\(`), "Potential deserialization vulnerability"},
	{regexp.MustCompile(`\.load\s*\(.*\.class\.getResource`), "Potential unsafe resource loading"},
	{regexp.MustCompile(`\.printStackTrace\s*\(`), "Information leakage through stack traces"},
	{regexp.MustCompile(`System\.out\.print`), "Debug information leakage"},
	{regexp.MustCompile(`\.getParameter\s*\(.*\)`), "Unvalidated input"},
	{regexp.MustCompile(`\.getHeader\s*\(.*\)`), "Unvalidated header"},
	{regexp.MustCompile(`\.getCookie\s*\(.*\)`), "Unvalidated cookie"},
	{regexp.MustCompile(`\.getAttribute\s*\(.*\)`), "Unvalidated attribute"},
}

var (
	// bugLineRe matches SpotBugs textui bug lines such as
	// "M S SQL_INJECTION: Method ... At Dao.java:[line 42]".
	bugLineRe  = regexp.MustCompile(`^([HML])\s+([A-Z])\s+([A-Z0-9_]+):\s+(.*)$`)
	bugSiteRe  = regexp.MustCompile(`At (\S+\.java):\[lines? (\d+)`)
	bugRankMap = map[string]string{"H": "high", "M": "medium", "L": "low"}
)

// security: SpotBugs over freshly compiled classes, or the pattern scan
// when the SpotBugs JAR is absent.
func (a *Analyzer) security(ctx context.Context, dir string, files []string) analysis.MetricResult {
	if !fileExists(a.cfg.SpotBugsJar) {
		result := scanPatterns(dir, files)
		result.Notes = append([]string{
			fmt.Sprintf("SpotBugs JAR not found at %s, using alternative security analysis", a.cfg.SpotBugsJar),
		}, result.Notes...)

		return result
	}

	return a.spotbugs(ctx, dir, files)
}

func (a *Analyzer) spotbugs(ctx context.Context, dir string, files []string) analysis.MetricResult {
	classDir, err := os.MkdirTemp(a.cfg.ConfigDir, "codereport-classes-*")
	if err != nil {
		return toolkit.Failed(toolSpotBugs, fmt.Errorf("create class dir: %w", err))
	}
	defer os.RemoveAll(classDir)

	// Files that fail to compile are skipped; SpotBugs scans what compiled.
	outputs, err := toolkit.PerFile(ctx, a.exec, a.cfg.FileWorkers, files, func(file string) toolexec.Command {
		return toolexec.Command{Name: a.cfg.Javac, Args: []string{"-d", classDir, toolkit.PathArg(file)}, Dir: dir, Label: toolJavac}
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return toolkit.Failed(toolJavac, ctxErr)
	}

	if err == nil {
		err = toolkit.FirstError(outputs)
	}

	if errors.Is(err, toolexec.ErrToolNotFound) {
		return toolkit.Failed(toolJavac, err)
	}

	out, err := a.exec.Run(ctx, toolexec.Command{
		Name:  a.cfg.Java,
		Args:  []string{"-jar", a.cfg.SpotBugsJar, "-textui", "-effort:max", "-low", classDir},
		Dir:   dir,
		Label: toolSpotBugs,
	})
	if err != nil {
		return toolkit.Failed(toolSpotBugs, err)
	}

	if out.ExitCode != 0 {
		return toolkit.Failed(toolSpotBugs, toolkit.ExitError(out))
	}

	result := analysis.MetricResult{Tool: toolSpotBugs}

	for _, line := range toolkit.Lines(string(out.Stdout)) {
		issue, ok := ParseBugLine(line, files)
		if ok {
			result.Issues = append(result.Issues, issue)
		}
	}

	if len(result.Issues) == 0 {
		result.Score = analysis.MaxScore
		result.Notes = []string{noSecurityNote}

		return result
	}

	result.Score = analysis.ScoreFromAverage(float64(len(result.Issues)), securityWeight)

	return result
}

// ParseBugLine parses one SpotBugs textui bug line. The reported source
// name is resolved against files by base name.
func ParseBugLine(line string, files []string) (analysis.Issue, bool) {
	match := bugLineRe.FindStringSubmatch(line)
	if match == nil {
		return analysis.Issue{}, false
	}

	issue := analysis.Issue{
		Rule:     match[3],
		Severity: bugRankMap[match[1]],
		Message:  match[4],
		Tool:     toolSpotBugs,
	}

	if site := bugSiteRe.FindStringSubmatch(match[4]); site != nil {
		issue.File = resolveSource(site[1], files)
		issue.Line, _ = strconv.Atoi(site[2])
	}

	return issue, true
}

func resolveSource(name string, files []string) string {
	found := ""

	for _, file := range files {
		if path.Base(file) != name {
			continue
		}

		if found != "" {
			return name
		}

		found = file
	}

	if found == "" {
		return name
	}

	return found
}

// scanPatterns counts risky call patterns per file; each pattern with
// matches is one issue line.
func scanPatterns(dir string, files []string) analysis.MetricResult {
	result := analysis.MetricResult{Tool: toolPatterns}

	var total int

	for _, file := range files {
		source, err := readSource(dir, file)
		if err != nil {
			result.Issues = append(result.Issues, analysis.RawIssue(toolPatterns, file,
				fmt.Sprintf("Error analyzing security for %s: %v", file, err)))

			continue
		}

		for _, call := range riskyCalls {
			n := len(call.re.FindAllStringIndex(source, -1))
			if n == 0 {
				continue
			}

			total += n

			issue := analysis.RawIssue(toolPatterns, file, fmt.Sprintf("%s: %s (%d occurrences)", file, call.label, n))
			issue.Severity = "warning"
			result.Issues = append(result.Issues, issue)
		}
	}

	if total == 0 {
		result.Score = analysis.MaxScore
		result.Notes = []string{noSecurityNote}

		return result
	}

	result.Score = analysis.ScoreFromAverage(float64(total), securityWeight)

	return result
}
