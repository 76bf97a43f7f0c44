// Package main provides the entry point for the codereport CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codereport/cmd/codereport/commands"
	"github.com/Sumatoshi-tech/codereport/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "codereport",
		Short: "Code quality reports for Python, JavaScript/TypeScript and Java",
		Long: `Codereport runs external static analyzers over source code and turns
their findings into per-language style, quality, complexity and security
scores, rendered as a PDF, HTML, JSON, YAML or terminal report.

Commands:
  serve     Web service with upload form and GitHub PR analysis
  analyze   One-shot analysis of a path, ZIP archive or PR URL
  tools     Check which external analysis tools are installed
  mcp       MCP server for AI agents`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	commands.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewToolsCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "codereport %s\n", version.String())
		},
	}
}
