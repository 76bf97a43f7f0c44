// Package commands implements CLI command handlers for codereport.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers"
	"github.com/Sumatoshi-tech/codereport/pkg/config"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
	"github.com/Sumatoshi-tech/codereport/pkg/intake"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
	"github.com/Sumatoshi-tech/codereport/pkg/version"
)

// Global flag names, registered on the root command by AddGlobalFlags.
const (
	FlagConfig  = "config"
	FlagVerbose = "verbose"
	FlagQuiet   = "quiet"
)

// ErrVerboseQuiet indicates both --verbose and --quiet were set.
var ErrVerboseQuiet = errors.New("--verbose and --quiet are mutually exclusive")

// AddGlobalFlags registers the persistent flags every command reads.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().StringP(FlagConfig, "c", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/codereport/config.yaml)")
	root.PersistentFlags().BoolP(FlagVerbose, "v", false, "verbose output")
	root.PersistentFlags().BoolP(FlagQuiet, "q", false, "suppress output")
}

// flagBool reads a boolean flag that may be absent when a command runs
// detached from the root.
func flagBool(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)

	return f != nil && f.Value.String() == "true"
}

func flagString(cmd *cobra.Command, name string) string {
	f := cmd.Flag(name)
	if f == nil {
		return ""
	}

	return f.Value.String()
}

// loadConfig loads the configuration named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if flagBool(cmd, FlagVerbose) && flagBool(cmd, FlagQuiet) {
		return nil, ErrVerboseQuiet
	}

	cfg, err := config.LoadConfig(flagString(cmd, FlagConfig))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// observabilityConfig maps cfg onto an observability.Config for mode.
func observabilityConfig(cmd *cobra.Command, cfg *config.Config, mode observability.AppMode) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = observability.ParseLogLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.Format == "json"

	switch {
	case flagBool(cmd, FlagVerbose):
		obsCfg.LogLevel = slog.LevelDebug
	case flagBool(cmd, FlagQuiet):
		obsCfg.LogLevel = slog.LevelError
	}

	return obsCfg
}

// appRuntime is everything a command needs to analyze.
type appRuntime struct {
	providers observability.Providers
	metrics   *observability.AnalysisMetrics
	executor  toolexec.Executor
	registry  *analysis.Registry
	service   *service.Service
}

// newRuntime wires telemetry, the tool runner, the analyzers and the
// analysis service from cfg. The caller must call providers.Shutdown.
func newRuntime(obsCfg observability.Config, cfg *config.Config) (*appRuntime, error) {
	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	rt := &appRuntime{providers: providers}

	rt.metrics, err = observability.NewAnalysisMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	rt.executor = toolexec.NewRunner(
		toolexec.WithLogger(providers.Logger),
		toolexec.WithTracer(providers.Tracer),
		toolexec.WithMetrics(rt.metrics),
		toolexec.WithTimeout(cfg.Analysis.ToolTimeout),
		toolexec.WithMaxOutput(cfg.MaxToolOutputBytes()),
	)

	rt.registry, err = analyzers.Default(rt.executor, cfg.Tools, cfg.Analysis.FileWorkers)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	gh, err := newGitHubClient(cfg, providers.Logger)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	rt.service = service.New(rt.registry,
		service.WithGitHub(gh),
		service.WithWorkspaceBase(cfg.Server.UploadDir),
		service.WithLimits(intake.Limits{
			MaxFiles: cfg.Analysis.MaxArchiveFiles,
			MaxBytes: cfg.MaxArchiveBytes(),
		}),
		service.WithTimeout(cfg.Analysis.Timeout),
		service.WithLogger(providers.Logger),
		service.WithTracer(providers.Tracer),
		service.WithMetrics(rt.metrics),
	)

	return rt, nil
}

func newGitHubClient(cfg *config.Config, logger *slog.Logger) (*github.Client, error) {
	client, err := github.NewClient(cfg.GitHub.APIURL,
		github.WithToken(cfg.GitHub.Token),
		github.WithHTTPClient(&http.Client{Timeout: cfg.GitHub.Timeout}),
		github.WithRateLimit(cfg.GitHub.RequestsPerSecond),
		github.WithMaxFiles(cfg.GitHub.MaxFiles),
		github.WithMaxFileSize(cfg.MaxPRFileBytes()),
		github.WithUserAgent("codereport/"+version.Version),
		github.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}

	return client, nil
}
