package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codereport/pkg/config"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
)

// executeChild runs a child of a root carrying the global flags and hands
// the parsed child command to fn.
func executeChild(t *testing.T, args []string, fn func(cmd *cobra.Command) error) error {
	t.Helper()

	root := &cobra.Command{Use: "codereport", SilenceUsage: true, SilenceErrors: true}
	AddGlobalFlags(root)

	root.AddCommand(&cobra.Command{
		Use:  "child",
		RunE: func(cmd *cobra.Command, _ []string) error { return fn(cmd) },
	})

	root.SetArgs(append([]string{"child"}, args...))

	return root.Execute()
}

func TestLoadConfig_FromFlag(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\nreport:\n  max_issues: 7\n"), 0o600))

	var cfg *config.Config

	err := executeChild(t, []string{"--config", path}, func(cmd *cobra.Command) error {
		var loadErr error

		cfg, loadErr = loadConfig(cmd)

		return loadErr
	})
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Report.MaxIssues)
}

func TestLoadConfig_VerboseQuiet(t *testing.T) {
	t.Parallel()

	err := executeChild(t, []string{"-v", "-q"}, func(cmd *cobra.Command) error {
		_, loadErr := loadConfig(cmd)

		return loadErr
	})
	require.ErrorIs(t, err, ErrVerboseQuiet)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	err := executeChild(t, []string{"-c", filepath.Join(t.TempDir(), "nope.yaml")}, func(cmd *cobra.Command) error {
		_, loadErr := loadConfig(cmd)

		return loadErr
	})
	require.Error(t, err)
}

func TestObservabilityConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	cfg.Telemetry.OTLPEndpoint = "collector:4317"
	cfg.Telemetry.OTLPHeaders = "api-key=secret"
	cfg.Telemetry.Environment = "staging"

	var got observability.Config

	err := executeChild(t, nil, func(cmd *cobra.Command) error {
		got = observabilityConfig(cmd, cfg, observability.ModeServe)

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, observability.ModeServe, got.Mode)
	assert.Equal(t, slog.LevelWarn, got.LogLevel)
	assert.True(t, got.LogJSON)
	assert.Equal(t, "collector:4317", got.OTLPEndpoint)
	assert.Equal(t, map[string]string{"api-key": "secret"}, got.OTLPHeaders)
	assert.Equal(t, "staging", got.Environment)

	err = executeChild(t, []string{"--verbose"}, func(cmd *cobra.Command) error {
		got = observabilityConfig(cmd, cfg, observability.ModeCLI)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, got.LogLevel)

	err = executeChild(t, []string{"--quiet"}, func(cmd *cobra.Command) error {
		got = observabilityConfig(cmd, cfg, observability.ModeCLI)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, got.LogLevel)
}

func TestFlagHelpersWithoutRoot(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "alone"}

	assert.False(t, flagBool(cmd, FlagVerbose))
	assert.Empty(t, flagString(cmd, FlagConfig))
}
