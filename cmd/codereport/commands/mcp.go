package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codereport/pkg/mcp"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
	"github.com/Sumatoshi-tech/codereport/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes codereport as tools that AI agents can discover and
invoke:
  - codereport_analyze: Analyze a local path or a GitHub pull request
  - codereport_tools: Report which external analysis tools are installed`,
		Args: cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cobraCmd)
			if err != nil {
				return err
			}

			obsCfg := observabilityConfig(cobraCmd, cfg, observability.ModeMCP)
			// stdout carries the protocol; logs go to stderr as JSON.
			obsCfg.LogJSON = true

			if debug {
				obsCfg.LogLevel = slog.LevelDebug
			}

			rt, err := newRuntime(obsCfg, cfg)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := rt.providers.Shutdown(context.Background())
				if shutdownErr != nil {
					rt.providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			requests, reqErr := observability.NewRequestMetrics(rt.providers.Meter)
			if reqErr != nil {
				return fmt.Errorf("request metrics: %w", reqErr)
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Service:  rt.service,
				Executor: rt.executor,
				Version:  version.Version,
				Logger:   rt.providers.Logger,
				Metrics:  requests,
				Tracer:   rt.providers.Tracer,
			})

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}
