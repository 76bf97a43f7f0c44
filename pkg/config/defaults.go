package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Server defaults.
const (
	DefaultPort                  = 5000
	DefaultHost                  = "0.0.0.0"
	DefaultMaxUploadSize         = "16MB"
	DefaultMaxConcurrentAnalyses = 4
)

// Analysis defaults.
const (
	DefaultMaxArchiveSize  = "256MB"
	DefaultMaxArchiveFiles = 10000
	DefaultMaxToolOutput   = "8MB"
	DefaultFileWorkers     = 4
)

// Tool defaults.
const (
	DefaultCheckstyleJar = "~/checkstyle.jar"
	DefaultSpotBugsJar   = "~/spotbugs/lib/spotbugs.jar"
	DefaultPMDRuleset    = "rulesets/java/quickstart.xml"
	DefaultComplexityMax = 10
)

// GitHub defaults.
const (
	DefaultGitHubAPIURL      = "https://api.github.com"
	DefaultRequestsPerSecond = 10.0
	DefaultGitHubMaxFiles    = 3000
	DefaultGitHubMaxFileSize = "20MB"
)

// Report defaults.
const (
	DefaultMaxIssues = 20
	DefaultTopFiles  = 10
)

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	tmp := os.TempDir()

	// Server defaults.
	viperCfg.SetDefault("server.port", DefaultPort)
	viperCfg.SetDefault("server.host", DefaultHost)
	viperCfg.SetDefault("server.upload_dir", filepath.Join(tmp, "codereport-uploads"))
	viperCfg.SetDefault("server.max_upload_size", DefaultMaxUploadSize)
	viperCfg.SetDefault("server.max_concurrent_analyses", DefaultMaxConcurrentAnalyses)
	viperCfg.SetDefault("server.read_timeout", "30s")
	viperCfg.SetDefault("server.write_timeout", "15m")
	viperCfg.SetDefault("server.idle_timeout", "60s")
	viperCfg.SetDefault("server.shutdown_timeout", "30s")

	// Analysis defaults.
	viperCfg.SetDefault("analysis.timeout", "10m")
	viperCfg.SetDefault("analysis.tool_timeout", "2m")
	viperCfg.SetDefault("analysis.max_tool_output", DefaultMaxToolOutput)
	viperCfg.SetDefault("analysis.max_archive_size", DefaultMaxArchiveSize)
	viperCfg.SetDefault("analysis.max_archive_files", DefaultMaxArchiveFiles)
	viperCfg.SetDefault("analysis.file_workers", DefaultFileWorkers)

	// Tool defaults.
	viperCfg.SetDefault("tools.flake8", "flake8")
	viperCfg.SetDefault("tools.pylint", "pylint")
	viperCfg.SetDefault("tools.radon", "radon")
	viperCfg.SetDefault("tools.bandit", "bandit")
	viperCfg.SetDefault("tools.npx", "npx")
	viperCfg.SetDefault("tools.npm", "npm")
	viperCfg.SetDefault("tools.java", "java")
	viperCfg.SetDefault("tools.javac", "javac")
	viperCfg.SetDefault("tools.pmd", "pmd")
	viperCfg.SetDefault("tools.pmd_ruleset", DefaultPMDRuleset)
	viperCfg.SetDefault("tools.checkstyle_jar", DefaultCheckstyleJar)
	viperCfg.SetDefault("tools.spotbugs_jar", DefaultSpotBugsJar)
	viperCfg.SetDefault("tools.complexity_max", DefaultComplexityMax)

	// GitHub defaults.
	viperCfg.SetDefault("github.api_url", DefaultGitHubAPIURL)
	viperCfg.SetDefault("github.token", "")
	viperCfg.SetDefault("github.timeout", "30s")
	viperCfg.SetDefault("github.requests_per_second", DefaultRequestsPerSecond)
	viperCfg.SetDefault("github.max_files", DefaultGitHubMaxFiles)
	viperCfg.SetDefault("github.max_file_size", DefaultGitHubMaxFileSize)

	// Report defaults.
	viperCfg.SetDefault("report.store_dir", filepath.Join(tmp, "codereport-reports"))
	viperCfg.SetDefault("report.ttl", "24h")
	viperCfg.SetDefault("report.cleanup_interval", "15m")
	viperCfg.SetDefault("report.max_issues", DefaultMaxIssues)
	viperCfg.SetDefault("report.top_files", DefaultTopFiles)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
}
