// Package config provides configuration loading and validation for codereport.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPort       = errors.New("invalid server port")
	ErrInvalidConcurrent = errors.New("max concurrent analyses must be positive")
	ErrInvalidSize       = errors.New("invalid size")
	ErrInvalidWorkers    = errors.New("file workers must be positive")
	ErrInvalidMaxIssues  = errors.New("report max issues must be positive")
	ErrInvalidRate       = errors.New("github requests per second must be positive")
	ErrInvalidAPIURL     = errors.New("github api url must be http or https")
)

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "CODEREPORT"

// envGitHubToken is the conventional GitHub token variable honoured when
// github.token is unset.
const envGitHubToken = "GITHUB_TOKEN"

const maxPort = 65535

// Config holds all configuration for codereport.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host                  string        `mapstructure:"host"`
	UploadDir             string        `mapstructure:"upload_dir"`
	MaxUploadSize         string        `mapstructure:"max_upload_size"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	WriteTimeout          time.Duration `mapstructure:"write_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown_timeout"`
	Port                  int           `mapstructure:"port"`
	MaxConcurrentAnalyses int           `mapstructure:"max_concurrent_analyses"`
}

// AnalysisConfig holds analysis pipeline configuration.
type AnalysisConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
	MaxToolOutput   string        `mapstructure:"max_tool_output"`
	MaxArchiveSize  string        `mapstructure:"max_archive_size"`
	MaxArchiveFiles int           `mapstructure:"max_archive_files"`
	FileWorkers     int           `mapstructure:"file_workers"`
}

// ToolsConfig locates the external analyzers.
type ToolsConfig struct {
	Flake8        string `mapstructure:"flake8"`
	Pylint        string `mapstructure:"pylint"`
	Radon         string `mapstructure:"radon"`
	Bandit        string `mapstructure:"bandit"`
	Npx           string `mapstructure:"npx"`
	Npm           string `mapstructure:"npm"`
	Java          string `mapstructure:"java"`
	Javac         string `mapstructure:"javac"`
	PMD           string `mapstructure:"pmd"`
	PMDRuleset    string `mapstructure:"pmd_ruleset"`
	CheckstyleJar string `mapstructure:"checkstyle_jar"`
	SpotBugsJar   string `mapstructure:"spotbugs_jar"`
	ComplexityMax int    `mapstructure:"complexity_max"`
}

// GitHubConfig holds GitHub API access configuration.
type GitHubConfig struct {
	APIURL            string        `mapstructure:"api_url"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxFileSize       string        `mapstructure:"max_file_size"`
	MaxFiles          int           `mapstructure:"max_files"`
}

// ReportConfig holds report rendering and retention configuration.
type ReportConfig struct {
	StoreDir        string        `mapstructure:"store_dir"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxIssues       int           `mapstructure:"max_issues"`
	TopFiles        int           `mapstructure:"top_files"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/codereport")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	if config.GitHub.Token == "" {
		config.GitHub.Token = os.Getenv(envGitHubToken)
	}

	config.Tools.CheckstyleJar = expandHome(config.Tools.CheckstyleJar)
	config.Tools.SpotBugsJar = expandHome(config.Tools.SpotBugsJar)

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	viperCfg := viper.New()
	setDefaults(viperCfg)

	var config Config

	// Defaults are static and always decode.
	_ = viperCfg.Unmarshal(&config)

	config.GitHub.Token = os.Getenv(envGitHubToken)
	config.Tools.CheckstyleJar = expandHome(config.Tools.CheckstyleJar)
	config.Tools.SpotBugsJar = expandHome(config.Tools.SpotBugsJar)

	return &config
}

// MaxUploadBytes returns the parsed server.max_upload_size.
func (c *Config) MaxUploadBytes() int64 {
	return mustBytes(c.Server.MaxUploadSize)
}

// MaxArchiveBytes returns the parsed analysis.max_archive_size.
func (c *Config) MaxArchiveBytes() int64 {
	return mustBytes(c.Analysis.MaxArchiveSize)
}

// MaxToolOutputBytes returns the parsed analysis.max_tool_output.
func (c *Config) MaxToolOutputBytes() int64 {
	return mustBytes(c.Analysis.MaxToolOutput)
}

// MaxPRFileBytes returns the parsed github.max_file_size.
func (c *Config) MaxPRFileBytes() int64 {
	return mustBytes(c.GitHub.MaxFileSize)
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	if config.Server.MaxConcurrentAnalyses <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrent, config.Server.MaxConcurrentAnalyses)
	}

	if config.Analysis.FileWorkers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Analysis.FileWorkers)
	}

	if config.Report.MaxIssues <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxIssues, config.Report.MaxIssues)
	}

	if config.GitHub.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, config.GitHub.RequestsPerSecond)
	}

	if !strings.HasPrefix(config.GitHub.APIURL, "http://") && !strings.HasPrefix(config.GitHub.APIURL, "https://") {
		return fmt.Errorf("%w: %q", ErrInvalidAPIURL, config.GitHub.APIURL)
	}

	sizes := map[string]string{
		"server.max_upload_size":    config.Server.MaxUploadSize,
		"analysis.max_archive_size": config.Analysis.MaxArchiveSize,
		"analysis.max_tool_output":  config.Analysis.MaxToolOutput,
		"github.max_file_size":      config.GitHub.MaxFileSize,
	}

	for key, raw := range sizes {
		n, err := humanize.ParseBytes(raw)
		if err != nil || n == 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalidSize, key, raw)
		}
	}

	return nil
}

func mustBytes(raw string) int64 {
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0
	}

	return int64(n) //nolint:gosec // config sizes are far below MaxInt64.
}

func expandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
