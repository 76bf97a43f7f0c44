// Package analyzers assembles the per-language tool suites into a registry.
package analyzers

import (
	"fmt"
	"os"
	"strings"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/java"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/javascript"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/python"
	"github.com/Sumatoshi-tech/codereport/pkg/config"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

// Default builds the registry of the Python, JavaScript/TypeScript and
// Java analyzers configured by tools. workers bounds per-file tool runs
// inside one metric.
func Default(exec toolexec.Executor, tools config.ToolsConfig, workers int) (*analysis.Registry, error) {
	reg, err := analysis.NewRegistry(
		python.New(exec, python.Config{
			Flake8:      tools.Flake8,
			Pylint:      tools.Pylint,
			Radon:       tools.Radon,
			Bandit:      tools.Bandit,
			FileWorkers: workers,
		}),
		javascript.New(exec, javascript.Config{
			Npx:           tools.Npx,
			Npm:           tools.Npm,
			FileWorkers:   workers,
			ComplexityMax: tools.ComplexityMax,
		}),
		java.New(exec, java.Config{
			Java:          tools.Java,
			Javac:         tools.Javac,
			PMD:           tools.PMD,
			PMDRuleset:    tools.PMDRuleset,
			CheckstyleJar: tools.CheckstyleJar,
			SpotBugsJar:   tools.SpotBugsJar,
			FileWorkers:   workers,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("build analyzer registry: %w", err)
	}

	return reg, nil
}

// ToolStatus reports whether one external tool can be found.
type ToolStatus struct {
	analysis.Tool

	Analyzer  string
	Path      string
	Available bool
}

// Status checks every tool of every registered analyzer. JAR tools are
// checked on disk; commands are resolved through the executor.
func Status(exec toolexec.Executor, reg *analysis.Registry) []ToolStatus {
	var statuses []ToolStatus

	for _, an := range reg.Analyzers() {
		lister, ok := an.(analysis.ToolLister)
		if !ok {
			continue
		}

		for _, tool := range lister.Tools() {
			status := ToolStatus{Tool: tool, Analyzer: an.Name()}

			if strings.HasSuffix(tool.Command, ".jar") {
				info, err := os.Stat(tool.Command)
				status.Available = err == nil && info.Mode().IsRegular()
				status.Path = tool.Command
			} else if path, err := exec.Lookup(tool.Command); err == nil {
				status.Available = true
				status.Path = path
			}

			statuses = append(statuses, status)
		}
	}

	return statuses
}
