package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
	"github.com/Sumatoshi-tech/codereport/pkg/report"
	"github.com/Sumatoshi-tech/codereport/pkg/report/plotpage"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
)

// stdoutTarget writes the report to standard output, even for PDF.
const stdoutTarget = "-"

// reportService is the part of service.Service the analyze command uses.
type reportService interface {
	AnalyzePath(ctx context.Context, path string) (*analysis.Report, error)
	AnalyzePR(ctx context.Context, ref github.PRRef) (*analysis.Report, error)
}

// analyzeDeps is what the analyze command runs against.
type analyzeDeps struct {
	svc        reportService
	reportOpts report.Options
	close      func()
}

type analyzeDepsProvider func(cmd *cobra.Command) (analyzeDeps, error)

// AnalyzeCommand holds configuration and dependencies for the analyze command.
type AnalyzeCommand struct {
	format    string
	output    string
	theme     string
	noColor   bool
	maxIssues int
	topFiles  int

	depsFn analyzeDepsProvider
	now    func() time.Time
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	return newAnalyzeCommandWithDeps(defaultAnalyzeDeps, time.Now)
}

func newAnalyzeCommandWithDeps(depsFn analyzeDepsProvider, now func() time.Time) *cobra.Command {
	ac := &AnalyzeCommand{
		format: string(report.FormatTable),
		depsFn: depsFn,
		now:    now,
	}

	cmd := &cobra.Command{
		Use:   "analyze <path|zip|pr-url>",
		Short: "Analyze a directory, file, ZIP archive or GitHub pull request",
		Long: `Analyze source code and render a code quality report.

The target is a local directory, a single source file, a ZIP archive or a
GitHub pull request URL (https://github.com/owner/repo/pull/N).

Text formats (table, json, yaml, html) are written to stdout unless --output
is given. PDF reports default to code_quality_report_<timestamp>.pdf, or
code_quality_report_PR_<owner>_<repo>_<n>_<timestamp>.pdf for a PR; use
--output - to stream a PDF to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: ac.run,
	}

	cmd.Flags().StringVarP(&ac.format, "format", "f", string(report.FormatTable), "Output format: table, json, yaml, html, pdf")
	cmd.Flags().StringVarP(&ac.output, "output", "o", "", "Output file (- for stdout)")
	cmd.Flags().StringVar(&ac.theme, "theme", string(plotpage.ThemeLight), "HTML theme: light, dark")
	cmd.Flags().BoolVar(&ac.noColor, "no-color", false, "Disable colored table output")
	cmd.Flags().IntVar(&ac.maxIssues, "max-issues", 0, "Issues listed per metric (0 = config default)")
	cmd.Flags().IntVar(&ac.topFiles, "top-files", 0, "Rows in the most affected files table (0 = config default)")

	return cmd
}

func (ac *AnalyzeCommand) run(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(ac.format)
	if err != nil {
		return err
	}

	deps, err := ac.depsFn(cmd)
	if err != nil {
		return err
	}
	defer deps.close()

	rep, ref, err := analyzeTarget(cmd.Context(), deps.svc, args[0])
	if err != nil {
		return err
	}

	opts := deps.reportOpts
	opts.NoColor = ac.noColor || ac.output != ""
	opts.Theme = plotpage.Theme(ac.theme)

	if ac.maxIssues > 0 {
		opts.MaxIssues = ac.maxIssues
	}

	if ac.topFiles > 0 {
		opts.TopFiles = ac.topFiles
	}

	var buf bytes.Buffer

	err = report.Render(&buf, rep, format, opts)
	if err != nil {
		return fmt.Errorf("render %s report: %w", format, err)
	}

	output := resolveOutput(ac.output, format, ac.now(), ref)
	if output == "" || output == stdoutTarget {
		return writeAll(cmd.OutOrStdout(), buf.Bytes())
	}

	err = os.WriteFile(output, buf.Bytes(), 0o600)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if !flagBool(cmd, FlagQuiet) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", output)
	}

	return nil
}

// analyzeTarget dispatches target to a PR or a path analysis.
func analyzeTarget(ctx context.Context, svc reportService, target string) (*analysis.Report, *github.PRRef, error) {
	target = strings.TrimSpace(target)

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		ref, err := github.ParsePRURL(target)
		if err != nil {
			return nil, nil, err
		}

		rep, err := svc.AnalyzePR(ctx, ref)
		if err != nil {
			return nil, nil, fmt.Errorf("analyze %s: %w", ref, err)
		}

		return rep, &ref, nil
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", target, err)
	}

	rep, err := svc.AnalyzePath(ctx, abs)
	if err != nil {
		return nil, nil, fmt.Errorf("analyze %s: %w", target, err)
	}

	return rep, nil, nil
}

// resolveOutput picks the output path. Binary formats never go to a
// terminal implicitly.
func resolveOutput(output string, format report.Format, now time.Time, ref *github.PRRef) string {
	if output != "" || !format.Binary() {
		return output
	}

	return service.Filename(now, format, ref)
}

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

func defaultAnalyzeDeps(cmd *cobra.Command) (analyzeDeps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return analyzeDeps{}, err
	}

	rt, err := newRuntime(observabilityConfig(cmd, cfg, observability.ModeCLI), cfg)
	if err != nil {
		return analyzeDeps{}, err
	}

	return analyzeDeps{
		svc: rt.service,
		reportOpts: report.Options{
			MaxIssues: cfg.Report.MaxIssues,
			TopFiles:  cfg.Report.TopFiles,
		},
		close: func() {
			shutdownErr := rt.providers.Shutdown(context.Background())
			if shutdownErr != nil {
				rt.providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
			}
		},
	}, nil
}
