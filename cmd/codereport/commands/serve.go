package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codereport/pkg/config"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
	"github.com/Sumatoshi-tech/codereport/pkg/report"
	"github.com/Sumatoshi-tech/codereport/pkg/reportstore"
	"github.com/Sumatoshi-tech/codereport/pkg/server"
)

const maxPort = 65535

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the code quality web service",
		Long: `Start the HTTP service: an upload form for source files and ZIP archives,
GitHub pull request analysis, PDF report downloads and the /healthz,
/readyz and /metrics endpoints.

The service stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			applyServeOverrides(cmd, cfg, host, port)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")

	return cmd
}

// applyServeOverrides applies explicitly set flags on top of cfg.
func applyServeOverrides(cmd *cobra.Command, cfg *config.Config, host string, port int) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", config.ErrInvalidPort, cfg.Server.Port)
	}

	obsCfg := observabilityConfig(cmd, cfg, observability.ModeServe)
	obsCfg.Prometheus = true

	rt, err := newRuntime(obsCfg, cfg)
	if err != nil {
		return err
	}

	logger := rt.providers.Logger

	defer func() {
		shutdownErr := rt.providers.Shutdown(context.Background())
		if shutdownErr != nil {
			logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	requests, err := observability.NewRequestMetrics(rt.providers.Meter)
	if err != nil {
		return fmt.Errorf("request metrics: %w", err)
	}

	store, err := reportstore.Open(cfg.Report.StoreDir,
		reportstore.WithTTL(cfg.Report.TTL),
		reportstore.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}

	srv := server.New(rt.service, store,
		server.WithMaxUploadBytes(cfg.MaxUploadBytes()),
		server.WithMaxConcurrent(cfg.Server.MaxConcurrentAnalyses),
		server.WithReportOptions(report.Options{
			MaxIssues: cfg.Report.MaxIssues,
			TopFiles:  cfg.Report.TopFiles,
		}),
		server.WithLogger(logger),
		server.WithTracer(rt.providers.Tracer),
		server.WithRequestMetrics(requests),
		server.WithMetricsHandler(rt.providers.MetricsHandler),
	)

	logger.Info("starting codereport",
		"addr", cfg.Addr(),
		"languages", rt.registry.Languages(),
		"report_store", store.Dir())

	return srv.ListenAndServe(ctx, cfg.Addr(), server.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Idle:     cfg.Server.IdleTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	}, cfg.Report.CleanupInterval)
}
