package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codereport/pkg/analyzers"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
)

// ErrMissingTools is returned by tools --strict when a required tool is
// not installed.
var ErrMissingTools = errors.New("required analysis tools are missing")

type statusProvider func(cmd *cobra.Command) ([]analyzers.ToolStatus, error)

// ToolsCommand holds configuration and dependencies for the tools command.
type ToolsCommand struct {
	strict   bool
	noColor  bool
	statusFn statusProvider
}

// NewToolsCommand creates the tools command.
func NewToolsCommand() *cobra.Command {
	return newToolsCommandWithDeps(defaultToolStatus)
}

func newToolsCommandWithDeps(statusFn statusProvider) *cobra.Command {
	tc := &ToolsCommand{statusFn: statusFn}

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Check which external analysis tools are installed",
		Long: `List every external tool the analyzers run, the metric it feeds and
whether it was found. A metric whose required tool is missing scores 0
and carries the tool error as its only issue.`,
		Args: cobra.NoArgs,
		RunE: tc.run,
	}

	cmd.Flags().BoolVar(&tc.strict, "strict", false, "Fail when a required tool is missing")
	cmd.Flags().BoolVar(&tc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (tc *ToolsCommand) run(cmd *cobra.Command, _ []string) error {
	statuses, err := tc.statusFn(cmd)
	if err != nil {
		return err
	}

	missing := renderToolStatus(cmd.OutOrStdout(), statuses, tc.noColor)

	if tc.strict && len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingTools, strings.Join(missing, ", "))
	}

	return nil
}

// renderToolStatus prints statuses as a table and returns the names of
// missing required tools.
func renderToolStatus(w io.Writer, statuses []analyzers.ToolStatus, noColor bool) []string {
	okColor := color.New(color.FgGreen)
	missingColor := color.New(color.FgRed)
	optionalColor := color.New(color.FgYellow)

	if noColor {
		okColor.DisableColor()
		missingColor.DisableColor()
		optionalColor.DisableColor()
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Header = text.FormatDefault
	tbl.AppendHeader(table.Row{"Analyzer", "Tool", "Metric", "Status", "Location"})

	var missing []string

	for _, st := range statuses {
		var status string

		switch {
		case st.Available:
			status = okColor.Sprint("found")
		case st.Optional:
			status = optionalColor.Sprint("optional, missing")
		default:
			status = missingColor.Sprint("missing")
			missing = append(missing, st.Name)
		}

		location := st.Path
		if location == "" {
			location = st.Command
		}

		tbl.AppendRow(table.Row{st.Analyzer, st.Name, string(st.Metric), status, location})
	}

	fmt.Fprintln(w, tbl.Render())

	return missing
}

func defaultToolStatus(cmd *cobra.Command) ([]analyzers.ToolStatus, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	rt, err := newRuntime(observabilityConfig(cmd, cfg, observability.ModeCLI), cfg)
	if err != nil {
		return nil, err
	}

	defer func() {
		shutdownErr := rt.providers.Shutdown(context.Background())
		if shutdownErr != nil {
			rt.providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	return analyzers.Status(rt.executor, rt.registry), nil
}
